package effects

import (
	"image"
	"image/color"
	"math/rand"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"genei/internal/frame"
)

const (
	columnWidth  = 10
	glyphHeight  = 16
	speedMin     = 4
	speedMax     = 10
	trailMin     = 8
	trailMax     = 30
	stepInterval = 50 * time.Millisecond
)

// matrixChars は雨に使う文字。数字・記号とラテン文字の一部
const matrixChars = "0123456789:.=*+-<>|ZYXWVUTSRQ"

// glyphMask はラスタライズ済みグリフのアルファ値(columnWidth×glyphHeight)
type glyphMask []byte

// matrixColumn は1列分の雨の状態
type matrixColumn struct {
	glyphs []int // マスク添字の列。先頭が雨の頭
	head   int   // 頭のY座標(px)。画面上端より上は負
	speed  int   // 1ステップの落下量(px)
}

// Matrix はデジタルレイン風のアニメーションを生成する
// Updateは前回のステップから一定時間が経つまで状態を進めない
type Matrix struct {
	width   int
	height  int
	rng     *rand.Rand
	masks   []glyphMask
	columns []matrixColumn

	lastUpdate time.Time
}

// NewMatrix はMatrixを作成する
// rngはプロセスで共有している乱数生成器を渡す
func NewMatrix(rng *rand.Rand) *Matrix {
	return &Matrix{rng: rng}
}

// Initialize は生成サイズを設定して各列をばらけた初期状態にする
// サイズが不正な場合は列を持たず、黒フレームを生成し続ける
func (m *Matrix) Initialize(width, height int) {
	m.width = width
	m.height = height
	m.masks = rasterizeGlyphs(matrixChars)

	n := 0
	if width > 0 {
		n = width / columnWidth
	}
	m.columns = make([]matrixColumn, n)
	for i := range m.columns {
		m.initColumn(&m.columns[i])
		if height > 0 {
			m.columns[i].head = -m.rng.Intn(height)
		}
	}
	m.lastUpdate = time.Time{}
}

// Reset は全列を画面外の初期位置へ戻す
func (m *Matrix) Reset() {
	for i := range m.columns {
		m.initColumn(&m.columns[i])
		if m.height > 0 {
			m.columns[i].head = -m.rng.Intn(m.height)
		}
	}
	m.lastUpdate = time.Time{}
}

// initColumn は1列を新しい乱数状態にする
func (m *Matrix) initColumn(c *matrixColumn) {
	c.speed = speedMin + m.rng.Intn(speedMax-speedMin+1)
	trail := trailMin + m.rng.Intn(trailMax-trailMin+1)
	c.head = -trail * glyphHeight
	c.glyphs = make([]int, trail)
	for i := range c.glyphs {
		c.glyphs[i] = m.rng.Intn(len(m.masks))
	}
}

// Update は前回のステップからstepInterval以上経っていれば雨を1段進める
// 各列は速度ぶん落下し、低確率で尾の文字が入れ替わる。画面の下へ
// 抜けた列は新しい乱数状態で上から降り直す
func (m *Matrix) Update(now time.Time) {
	if m.lastUpdate.IsZero() {
		m.lastUpdate = now
		return
	}
	if now.Sub(m.lastUpdate) < stepInterval {
		return
	}
	m.lastUpdate = now

	for i := range m.columns {
		c := &m.columns[i]
		c.head += c.speed

		if m.rng.Intn(10) == 0 && len(c.glyphs) > 0 {
			c.glyphs[m.rng.Intn(len(c.glyphs))] = m.rng.Intn(len(m.masks))
		}

		if c.head > m.height+len(c.glyphs)*glyphHeight {
			m.initColumn(c)
		}
	}
}

// Render は現在の状態を黒地に描いたフレームを返す
func (m *Matrix) Render() frame.Frame {
	f := frame.New(m.width, m.height)
	if f.Empty() {
		return f
	}

	for i := range m.columns {
		c := &m.columns[i]
		x := i * columnWidth
		for d := 0; d < len(c.glyphs); d++ {
			y := c.head - d*glyphHeight
			if y < -glyphHeight || y > m.height+glyphHeight {
				continue
			}
			r, g, b := trailColor(d)
			m.stampGlyph(f, c.glyphs[d], x, y, r, g, b)
		}
	}
	return f
}

// RenderOverlay は雨をベースフレームへ不透明度opacityで合成した
// 新しいフレームを返す。雨が黒い画素はベースをそのまま残す
func (m *Matrix) RenderOverlay(base frame.Frame, opacity float64) frame.Frame {
	rain := m.Render()
	if base.Empty() {
		return rain
	}

	out := base.Clone()
	if !rain.Empty() && (rain.Width != out.Width || rain.Height != out.Height) {
		rain = frame.Resize(rain, out.Width, out.Height)
	}

	n := len(out.Pix)
	if len(rain.Pix) < n {
		n = len(rain.Pix)
	}
	for i := 0; i+2 < n; i += 3 {
		r, g, b := rain.Pix[i], rain.Pix[i+1], rain.Pix[i+2]
		if r == 0 && g == 0 && b == 0 {
			continue
		}
		out.Pix[i] = blend(out.Pix[i], r, opacity)
		out.Pix[i+1] = blend(out.Pix[i+1], g, opacity)
		out.Pix[i+2] = blend(out.Pix[i+2], b, opacity)
	}
	return out
}

// trailColor は頭からの距離に応じた色を返す
// 頭は白に近い緑、尾は距離とともに暗い緑へ落ちる
func trailColor(distance int) (r, g, b byte) {
	if distance == 0 {
		return 200, 255, 200
	}
	brightness := 255 - distance*15
	if brightness < 50 {
		brightness = 50
	}
	return 0, byte(brightness), 0
}

// stampGlyph はグリフをアルファ合成でフレームへ描く
func (m *Matrix) stampGlyph(f frame.Frame, idx, x0, y0 int, r, g, b byte) {
	mask := m.masks[idx]
	for row := 0; row < glyphHeight; row++ {
		py := y0 + row
		if py < 0 || py >= f.Height {
			continue
		}
		for col := 0; col < columnWidth; col++ {
			a := mask[row*columnWidth+col]
			if a == 0 {
				continue
			}
			px := x0 + col
			if px < 0 || px >= f.Width {
				continue
			}
			br, bg, bb := f.RGBAt(px, py)
			af := float64(a) / 255
			f.SetRGB(px, py,
				byte(float64(br)*(1-af)+float64(r)*af),
				byte(float64(bg)*(1-af)+float64(g)*af),
				byte(float64(bb)*(1-af)+float64(b)*af))
		}
	}
}

// blend は2値を不透明度で線形補間する
func blend(base, over byte, opacity float64) byte {
	return byte(float64(base)*(1-opacity) + float64(over)*opacity + 0.5)
}

// rasterizeGlyphs は文字列の各文字をbasicfontでセルサイズのマスクへ描く
func rasterizeGlyphs(chars string) []glyphMask {
	runes := []rune(chars)
	masks := make([]glyphMask, 0, len(runes))
	for _, r := range runes {
		img := image.NewRGBA(image.Rect(0, 0, columnWidth, glyphHeight))
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.White),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(2, 12),
		}
		d.DrawString(string(r))

		mask := make(glyphMask, columnWidth*glyphHeight)
		for i := range mask {
			mask[i] = img.Pix[i*4+3]
		}
		masks = append(masks, mask)
	}
	return masks
}
