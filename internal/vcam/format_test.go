package vcam

import (
	"encoding/binary"
	"testing"
)

func TestNewPixFormat(t *testing.T) {
	tests := []struct {
		name         string
		width        int
		height       int
		bytesPerLine uint32
		sizeImage    uint32
	}{
		{"フルHD", 1920, 1080, 3840, 4147200},
		{"HD", 1280, 720, 2560, 1843200},
		{"VGA", 640, 480, 1280, 614400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pix := NewPixFormat(tt.width, tt.height)
			if pix.PixelFormat != pixelFormatYUYV {
				t.Errorf("PixelFormat = %#x, want %#x", pix.PixelFormat, uint32(pixelFormatYUYV))
			}
			if pix.Field != fieldNone {
				t.Errorf("Field = %d, want %d", pix.Field, fieldNone)
			}
			if pix.Colorspace != colorspaceSRGB {
				t.Errorf("Colorspace = %d, want %d", pix.Colorspace, colorspaceSRGB)
			}
			if pix.BytesPerLine != tt.bytesPerLine {
				t.Errorf("BytesPerLine = %d, want %d", pix.BytesPerLine, tt.bytesPerLine)
			}
			if pix.SizeImage != tt.sizeImage {
				t.Errorf("SizeImage = %d, want %d", pix.SizeImage, tt.sizeImage)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	pix := NewPixFormat(1280, 720)
	pix.Priv = 7
	pix.Quantization = 2

	buf := encodeFormat(pix)
	if len(buf) != formatSize {
		t.Fatalf("バッファ長 = %d, want %d", len(buf), formatSize)
	}
	if got := binary.LittleEndian.Uint32(buf[0:]); got != bufTypeVideoOutput {
		t.Errorf("バッファタイプ = %d, want %d", got, bufTypeVideoOutput)
	}

	decoded := decodeFormat(buf)
	if decoded != pix {
		t.Errorf("復元結果が一致しません: got %+v, want %+v", decoded, pix)
	}
}

func TestDecodeFormatShortBuffer(t *testing.T) {
	decoded := decodeFormat(make([]byte, 16))
	if decoded != (PixFormat{}) {
		t.Errorf("短いバッファからはゼロ値を返すべき: got %+v", decoded)
	}
}
