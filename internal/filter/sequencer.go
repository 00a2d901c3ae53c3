package filter

import (
	"log"
	"math/rand"
	"time"

	"genei/internal/config"
	"genei/internal/frame"
)

// EffectState はエフェクトシーケンスの状態
type EffectState string

const (
	// EffectPassthrough はカメラ映像をそのまま流している状態
	EffectPassthrough EffectState = "passthrough"
	// EffectTransition は切り替えパターン(ノイズ)を表示している状態
	EffectTransition EffectState = "transition"
	// EffectAnimation はアニメーションを合成している状態
	EffectAnimation EffectState = "animation"
)

// アニメーション合成の不透明度
const overlayOpacity = 0.85

// TransitionGenerator は切り替えパターンとアイドルパターンの生成境界
type TransitionGenerator interface {
	Initialize(width, height int)
	Generate() frame.Frame
	ResetIdle()
	ResetEffect()
}

// AnimationGenerator はアニメーションの生成境界
type AnimationGenerator interface {
	Initialize(width, height int)
	Update(now time.Time)
	Render() frame.Frame
	RenderOverlay(base frame.Frame, opacity float64) frame.Frame
	Reset()
}

// Sequencer はパススルーとエフェクトの切り替えを時刻駆動で決める
// 発動時刻の乱数はプロセスで1つの生成器から引く。1ティックに1回
// Processを呼ぶ前提で、状態遷移はすべてその中で完結する
type Sequencer struct {
	transition TransitionGenerator
	animation  AnimationGenerator
	rng        *rand.Rand

	minInterval        time.Duration
	maxInterval        time.Duration
	transitionDuration time.Duration
	effectDuration     time.Duration
	startDelay         time.Duration
	cycles             int
	testMode           bool

	state          EffectState
	nextEffectTime time.Time
	stateStart     time.Time
	scheduled      bool
	completed      int
	finished       bool
	primed         bool
}

// NewSequencer はSequencerを作成する
func NewSequencer(cfg config.EffectConfig, transition TransitionGenerator, animation AnimationGenerator, rng *rand.Rand) *Sequencer {
	return &Sequencer{
		transition:         transition,
		animation:          animation,
		rng:                rng,
		minInterval:        time.Duration(cfg.MinInterval),
		maxInterval:        time.Duration(cfg.MaxInterval),
		transitionDuration: time.Duration(cfg.TransitionDuration),
		effectDuration:     time.Duration(cfg.EffectDuration),
		startDelay:         time.Duration(cfg.StartDelay),
		cycles:             cfg.Cycles,
		testMode:           cfg.TestMode,
		state:              EffectPassthrough,
	}
}

// Prime は撮影セッションの開始を起点に次の発動時刻を予約する
// すでに予約済みならそのまま維持するため、同一セッション内の
// カメラ復帰で発動時刻がずれることはない
func (s *Sequencer) Prime(now time.Time) {
	if s.finished || s.scheduled {
		return
	}

	switch {
	case !s.primed && s.testMode:
		s.nextEffectTime = now
		log.Println("テストモード: エフェクトを即時発動します")
	case !s.primed && s.startDelay >= 0:
		s.nextEffectTime = now.Add(s.startDelay)
		log.Printf("初回エフェクトを%sに予約しました", config.FormatDuration(s.startDelay))
	default:
		interval := s.drawInterval()
		s.nextEffectTime = now.Add(interval)
		log.Printf("次のエフェクトを%sに予約しました", config.FormatDuration(interval))
	}
	s.scheduled = true
	s.primed = true
}

// Discard は予約と進行中のエフェクトを破棄する
// コンシューマが全員いなくなったときに呼び、完了済みサイクル数は
// 持ち越す
func (s *Sequencer) Discard() {
	s.scheduled = false
	s.state = EffectPassthrough
}

// Interrupt はカメラ喪失などで進行中のエフェクトを中断する
// 中断されたサイクルは完了と数えず、次の発動を中断時刻から引き直す
// パススルー中なら既存の予約をそのまま残す
func (s *Sequencer) Interrupt(now time.Time) {
	if s.state == EffectPassthrough {
		return
	}
	s.state = EffectPassthrough
	if s.finished {
		s.scheduled = false
		return
	}
	interval := s.drawInterval()
	s.nextEffectTime = now.Add(interval)
	s.scheduled = true
	log.Printf("エフェクトを中断しました。次の発動は%s後", config.FormatDuration(interval))
}

// Process は1ティックぶん状態を進めて出力フレームを返す
// 状態を切り替えたティックは切り替え前の内容を出力する
func (s *Sequencer) Process(now time.Time, live frame.Frame) frame.Frame {
	switch s.state {
	case EffectTransition:
		out := s.transition.Generate()
		if now.Sub(s.stateStart) >= s.transitionDuration {
			s.state = EffectAnimation
			s.stateStart = now
			s.animation.Reset()
			log.Println("アニメーションを表示します")
		}
		return out

	case EffectAnimation:
		s.animation.Update(now)
		out := s.animation.RenderOverlay(live, overlayOpacity)
		if now.Sub(s.stateStart) >= s.effectDuration {
			s.completeCycle(now)
		}
		return out

	default:
		if s.scheduled && !s.finished && !now.Before(s.nextEffectTime) {
			s.state = EffectTransition
			s.stateStart = now
			s.scheduled = false
			s.transition.ResetEffect()
			log.Println("エフェクトを発動します: ノイズ表示")
		}
		return live
	}
}

// completeCycle はアニメーション完了時の後始末をする
func (s *Sequencer) completeCycle(now time.Time) {
	s.state = EffectPassthrough
	s.completed++

	if s.cycles > 0 && s.completed >= s.cycles {
		s.finished = true
		s.scheduled = false
		log.Printf("%d回のエフェクトを完了しました。以後はパススルーのみ", s.completed)
		return
	}

	interval := s.drawInterval()
	s.nextEffectTime = now.Add(interval)
	s.scheduled = true
	log.Printf("パススルーへ戻ります。次の発動は%s後", config.FormatDuration(interval))
}

// drawInterval は[minInterval, maxInterval]から一様に1つ引く。両端を含む
func (s *Sequencer) drawInterval() time.Duration {
	span := int64(s.maxInterval - s.minInterval)
	if span <= 0 {
		return s.minInterval
	}
	return s.minInterval + time.Duration(s.rng.Int63n(span+1))
}

// State は現在のエフェクト状態を返す
func (s *Sequencer) State() EffectState {
	return s.state
}

// CompletedCycles は完了したエフェクトの回数を返す
func (s *Sequencer) CompletedCycles() int {
	return s.completed
}

// Finished はサイクル上限に達したかを返す
func (s *Sequencer) Finished() bool {
	return s.finished
}

// NextEffectTime は予約済みの発動時刻を返す。未予約なら ok=false
func (s *Sequencer) NextEffectTime() (t time.Time, ok bool) {
	if !s.scheduled {
		return time.Time{}, false
	}
	return s.nextEffectTime, true
}

// MockTransitionGenerator はテスト用のTransitionGenerator実装
type MockTransitionGenerator struct {
	Width, Height int
	Frame         frame.Frame
	GenerateCount int
	IdleResets    int
	EffectResets  int
}

// Initialize はサイズを記録する
func (m *MockTransitionGenerator) Initialize(width, height int) {
	m.Width, m.Height = width, height
}

// Generate は設定されたフレームを返す
func (m *MockTransitionGenerator) Generate() frame.Frame {
	m.GenerateCount++
	return m.Frame
}

// ResetIdle は呼び出し回数を記録する
func (m *MockTransitionGenerator) ResetIdle() { m.IdleResets++ }

// ResetEffect は呼び出し回数を記録する
func (m *MockTransitionGenerator) ResetEffect() { m.EffectResets++ }

// MockAnimationGenerator はテスト用のAnimationGenerator実装
type MockAnimationGenerator struct {
	Width, Height int
	Frame         frame.Frame
	UpdateCount   int
	RenderCount   int
	OverlayCount  int
	Resets        int
	LastOpacity   float64
}

// Initialize はサイズを記録する
func (m *MockAnimationGenerator) Initialize(width, height int) {
	m.Width, m.Height = width, height
}

// Update は呼び出し回数を記録する
func (m *MockAnimationGenerator) Update(time.Time) { m.UpdateCount++ }

// Render は設定されたフレームを返す
func (m *MockAnimationGenerator) Render() frame.Frame {
	m.RenderCount++
	return m.Frame
}

// RenderOverlay は設定されたフレームを返し、不透明度を記録する
func (m *MockAnimationGenerator) RenderOverlay(_ frame.Frame, opacity float64) frame.Frame {
	m.OverlayCount++
	m.LastOpacity = opacity
	return m.Frame
}

// Reset は呼び出し回数を記録する
func (m *MockAnimationGenerator) Reset() { m.Resets++ }
