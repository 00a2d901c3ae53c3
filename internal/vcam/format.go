package vcam

import (
	"encoding/binary"
)

// videodev2.h の定数
const (
	bufTypeVideoOutput = 2          // V4L2_BUF_TYPE_VIDEO_OUTPUT
	fieldNone          = 1          // V4L2_FIELD_NONE
	colorspaceSRGB     = 8          // V4L2_COLORSPACE_SRGB
	pixelFormatYUYV    = 0x56595559 // V4L2_PIX_FMT_YUYV

	// VIDIOC_G_FMT / VIDIOC_S_FMT（struct v4l2_format は208バイト）
	vidiocGFmt uintptr = 0xC0D05604
	vidiocSFmt uintptr = 0xC0D05605

	// sizeof(struct v4l2_format)
	formatSize = 208
	// 共用体メンバー（v4l2_pix_format）の開始オフセット
	pixOffset = 8
)

// PixFormat は struct v4l2_pix_format に対応する
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// NewPixFormat は指定サイズのYUYV固定フォーマットを作成する
// 2バイト/画素・インターレースなしで、行バイト数と総バイト数もここで決まる
func NewPixFormat(width, height int) PixFormat {
	w, h := uint32(width), uint32(height)
	return PixFormat{
		Width:        w,
		Height:       h,
		PixelFormat:  pixelFormatYUYV,
		Field:        fieldNone,
		BytesPerLine: w * 2,
		SizeImage:    w * h * 2,
		Colorspace:   colorspaceSRGB,
	}
}

// encodeFormat はPixFormatを出力ストリーム用のv4l2_formatバイト列へ変換する
func encodeFormat(pix PixFormat) []byte {
	buf := make([]byte, formatSize)
	binary.LittleEndian.PutUint32(buf[0:], bufTypeVideoOutput)

	fields := [...]uint32{
		pix.Width, pix.Height, pix.PixelFormat, pix.Field,
		pix.BytesPerLine, pix.SizeImage, pix.Colorspace, pix.Priv,
		pix.Flags, pix.YcbcrEnc, pix.Quantization, pix.XferFunc,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[pixOffset+i*4:], v)
	}
	return buf
}

// decodeFormat はドライバーが書き戻したバイト列からPixFormatを読み取る
func decodeFormat(buf []byte) PixFormat {
	if len(buf) < formatSize {
		return PixFormat{}
	}
	at := func(i int) uint32 {
		return binary.LittleEndian.Uint32(buf[pixOffset+i*4:])
	}
	return PixFormat{
		Width:        at(0),
		Height:       at(1),
		PixelFormat:  at(2),
		Field:        at(3),
		BytesPerLine: at(4),
		SizeImage:    at(5),
		Colorspace:   at(6),
		Priv:         at(7),
		Flags:        at(8),
		YcbcrEnc:     at(9),
		Quantization: at(10),
		XferFunc:     at(11),
	}
}
