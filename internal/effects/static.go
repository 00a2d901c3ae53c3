// Package effects はフィルタが差し込む映像パターンの生成を担う
package effects

import (
	"math/rand"
	"time"

	"genei/internal/frame"
)

const (
	// 走査線を暗くする係数(偶数行)
	scanlineFactor = 0.7

	// アイドルモードの成長パラメータ
	idleStepInterval = 200 * time.Millisecond
	idleGrowDuration = 20 * time.Second
	idleInitialRatio = 0.12
)

// Static はテレビの砂嵐風ノイズを生成する
// エフェクトモードでは毎回全面を描き直し、アイドルモードでは
// 中央の小窓から全面へゆっくり成長させる。アイドルモードは
// ステップ間隔までキャッシュを返すためCPU負荷が低い
type Static struct {
	width  int
	height int
	rng    *rand.Rand
	now    func() time.Time

	idle      bool
	idleStart time.Time
	lastStep  time.Time
	cached    frame.Frame
}

// NewStatic はStaticを作成する
// rngはプロセスで共有している乱数生成器を渡す
func NewStatic(rng *rand.Rand) *Static {
	return &Static{rng: rng, now: time.Now}
}

// Initialize は生成サイズを設定し、アイドルモードから始める
// サイズが不正な場合でもエラーにはせず、空フレームを生成し続ける
func (s *Static) Initialize(width, height int) {
	s.width = width
	s.height = height
	s.ResetIdle()
}

// ResetIdle はアイドルモードへ切り替えて成長アニメーションを最初から始める
func (s *Static) ResetIdle() {
	s.idle = true
	s.idleStart = s.now()
	s.lastStep = time.Time{}
	s.cached = frame.Frame{}
}

// ResetEffect はエフェクトモード(全面ノイズ)へ切り替える
func (s *Static) ResetEffect() {
	s.idle = false
	s.cached = frame.Frame{}
}

// Generate は現在のモードに応じたノイズフレームを返す
// アイドルモードではステップ間隔が経過するまで前回のフレームを
// そのまま返す
func (s *Static) Generate() frame.Frame {
	if !s.idle {
		return s.noiseWindow(1.0)
	}

	now := s.now()
	if !s.cached.Empty() && now.Sub(s.lastStep) < idleStepInterval {
		return s.cached
	}

	ratio := idleInitialRatio
	if elapsed := now.Sub(s.idleStart); elapsed > 0 {
		ratio += (1 - idleInitialRatio) * float64(elapsed) / float64(idleGrowDuration)
	}
	if ratio > 1 {
		ratio = 1
	}

	s.cached = s.noiseWindow(ratio)
	s.lastStep = now
	return s.cached
}

// noiseWindow は中央に比率ratioのノイズ窓を持つフレームを生成する
// 窓の外は黒のまま。偶数行はscanlineFactorで暗くする
func (s *Static) noiseWindow(ratio float64) frame.Frame {
	f := frame.New(s.width, s.height)
	if f.Empty() {
		return f
	}

	ww := int(float64(s.width) * ratio)
	wh := int(float64(s.height) * ratio)
	if ww > s.width {
		ww = s.width
	}
	if wh > s.height {
		wh = s.height
	}
	x0 := (s.width - ww) / 2
	y0 := (s.height - wh) / 2

	for y := y0; y < y0+wh; y++ {
		dark := y%2 == 0
		for x := x0; x < x0+ww; x++ {
			v := byte(s.rng.Intn(256))
			if dark {
				v = byte(float64(v) * scanlineFactor)
			}
			i := (y*s.width + x) * 3
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = v, v, v
		}
	}
	return f
}
