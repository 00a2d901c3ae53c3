// Package frame はパイプライン各段が受け渡すRGB24フレームを提供する
package frame

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Frame はRGB24のピクセルバッファを保持する
// Pixは行順に Width*3 バイトずつ並び、各ピクセルはR,G,Bの3バイト
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// New は指定サイズの黒フレームを作成する
func New(width, height int) Frame {
	if width <= 0 || height <= 0 {
		return Frame{}
	}
	return Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// Empty はフレームが空（サイズ不正またはバッファ不足）かどうかを返す
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*3
}

// Clone はピクセルバッファを複製した新しいフレームを返す
// 各段はフレームを共有せず、下流へ渡す前に複製する
func (f Frame) Clone() Frame {
	if f.Empty() {
		return Frame{}
	}
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// RGBAt は指定座標のRGB値を返す
// 範囲外の座標はゼロ値を返す
func (f Frame) RGBAt(x, y int) (r, g, b byte) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height || f.Empty() {
		return 0, 0, 0
	}
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetRGB は指定座標へRGB値を書き込む
// 範囲外の座標は無視する
func (f Frame) SetRGB(x, y int, r, g, b byte) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height || f.Empty() {
		return
	}
	i := (y*f.Width + x) * 3
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
}

// Fill はフレーム全体を単色で塗りつぶす
func (f Frame) Fill(r, g, b byte) {
	if f.Empty() {
		return
	}
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i] = r
		f.Pix[i+1] = g
		f.Pix[i+2] = b
	}
}

// ToRGBA はフレームをimage.RGBAへ変換する
func (f Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	if f.Empty() {
		return img
	}
	for y := 0; y < f.Height; y++ {
		si := y * f.Width * 3
		di := y * img.Stride
		for x := 0; x < f.Width; x++ {
			img.Pix[di] = f.Pix[si]
			img.Pix[di+1] = f.Pix[si+1]
			img.Pix[di+2] = f.Pix[si+2]
			img.Pix[di+3] = 0xff
			si += 3
			di += 4
		}
	}
	return img
}

// FromRGBA はimage.RGBAからフレームを作成する
func FromRGBA(img *image.RGBA) Frame {
	if img == nil {
		return Frame{}
	}
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	if f.Empty() {
		return Frame{}
	}
	for y := 0; y < f.Height; y++ {
		si := img.PixOffset(b.Min.X, b.Min.Y+y)
		di := y * f.Width * 3
		for x := 0; x < f.Width; x++ {
			f.Pix[di] = img.Pix[si]
			f.Pix[di+1] = img.Pix[si+1]
			f.Pix[di+2] = img.Pix[si+2]
			si += 4
			di += 3
		}
	}
	return f
}

// FromImage は任意のimage.Imageからフレームを作成する
func FromImage(img image.Image) Frame {
	if img == nil {
		return Frame{}
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return FromRGBA(rgba)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	return FromRGBA(rgba)
}

// Resize はフレームを指定サイズへ拡大縮小した新しいフレームを返す
// サイズが一致する場合は複製を返す
func Resize(src Frame, width, height int) Frame {
	if src.Empty() || width <= 0 || height <= 0 {
		return Frame{}
	}
	if src.Width == width && src.Height == height {
		return src.Clone()
	}
	srcImg := src.ToRGBA()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), srcImg, srcImg.Bounds(), xdraw.Src, nil)
	return FromRGBA(dst)
}
