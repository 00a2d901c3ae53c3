package filter

import (
	"context"
	"log"
	"math/rand"
	"time"

	"genei/internal/camera"
	"genei/internal/config"
	"genei/internal/frame"
)

// Sink は合成ビデオデバイスへの出力境界
type Sink interface {
	WriteFrame(f frame.Frame) error
	Resolution() (width, height int)
}

// ConsumerDetector はコンシューマ検出の境界
type ConsumerDetector interface {
	Count() int
}

// Status はランナーの状態スナップショット
type Status struct {
	CameraState     CameraState
	EffectState     EffectState
	Consumers       int
	SessionID       string
	CompletedCycles int
	NextEffectTime  time.Time // ゼロ値なら未予約
	FPS             int
}

// Runner は全コンポーネントを1本のティックループで駆動する
// 1ティック = 1フレーム周期。コンシューマ数はティック冒頭で一度だけ
// 読み、そのティック内ではその値だけを使う。全状態はこのループの
// 実行文脈が独占するためロックは持たない
type Runner struct {
	lifecycle  *Lifecycle
	sequencer  *Sequencer
	sink       Sink
	detector   ConsumerDetector
	transition TransitionGenerator
	animation  AnimationGenerator

	fps       int
	genWidth  int
	genHeight int
	consumers int
}

// NewRunner はRunnerと配下の状態機械を作成する
func NewRunner(cfg *config.Config, capture CaptureSource, sink Sink, detector ConsumerDetector, transition TransitionGenerator, animation AnimationGenerator, rng *rand.Rand) *Runner {
	return &Runner{
		lifecycle:  NewLifecycle(capture, cfg.Camera, cfg.Output.Device),
		sequencer:  NewSequencer(cfg.Effect, transition, animation, rng),
		sink:       sink,
		detector:   detector,
		transition: transition,
		animation:  animation,
		fps:        camera.DefaultFPS,
	}
}

// Run はコンテキストが取り消されるまでティックループを回す
// 各ティックの末尾で現在のフレームレートに合わせて休む(最低1ms)
func (r *Runner) Run(ctx context.Context) error {
	w, h := r.sink.Resolution()
	r.initGenerators(w, h)

	if err := r.lifecycle.Start(); err != nil {
		return err
	}
	if r.lifecycle.State() == CameraActive {
		r.beginSession(time.Now())
	}

	log.Println("フィルタを開始しました")
	for {
		select {
		case <-ctx.Done():
			log.Println("シャットダウンします")
			r.lifecycle.Close()
			return nil
		default:
		}

		start := time.Now()
		r.tick(start)

		sleep := time.Second/time.Duration(r.fps) - time.Since(start)
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}
		time.Sleep(sleep)
	}
}

// Status は現在の状態のスナップショットを返す
func (r *Runner) Status() Status {
	st := Status{
		CameraState:     r.lifecycle.State(),
		EffectState:     r.sequencer.State(),
		Consumers:       r.consumers,
		SessionID:       r.lifecycle.SessionID(),
		CompletedCycles: r.sequencer.CompletedCycles(),
		FPS:             r.fps,
	}
	if t, ok := r.sequencer.NextEffectTime(); ok {
		st.NextEffectTime = t
	}
	return st
}

// tick は1ティックぶんの処理を行う
func (r *Runner) tick(now time.Time) {
	count := r.detector.Count()
	r.consumers = count

	prev := r.lifecycle.State()
	res := r.lifecycle.Tick(now, count > 0)
	if res.State != prev {
		r.onStateChange(prev, res.State, now)
	}

	if res.State == CameraActive {
		if res.Skip {
			return
		}
		r.write(r.sequencer.Process(now, res.Frame))
		return
	}

	// カメラなし: アイドルパターンを流し続ける
	r.write(r.transition.Generate())
}

// onStateChange はライフサイクルの遷移に伴う付帯処理を行う
func (r *Runner) onStateChange(prev, next CameraState, now time.Time) {
	switch next {
	case CameraActive:
		r.beginSession(now)
	case CameraUnavailable:
		if prev == CameraActive {
			r.sequencer.Interrupt(now)
		}
		r.transition.ResetIdle()
		r.fps = camera.DefaultFPS
	case CameraIdle:
		r.sequencer.Discard()
		r.transition.ResetIdle()
		r.fps = camera.DefaultFPS
	}
}

// beginSession は撮影セッションの開始・復帰に合わせて生成器と
// ティックレートをカメラに揃え、発動時刻を予約する
func (r *Runner) beginSession(now time.Time) {
	res := r.lifecycle.CameraResolution()
	if res.Width > 0 && res.Height > 0 && (res.Width != r.genWidth || res.Height != r.genHeight) {
		r.initGenerators(res.Width, res.Height)
		log.Printf("生成サイズを%sへ変更しました", res)
	}
	r.fps = camera.ClampFPS(r.lifecycle.CameraFPS())
	r.sequencer.Prime(now)
}

// initGenerators は両方の生成器を同じサイズで初期化する
func (r *Runner) initGenerators(width, height int) {
	r.transition.Initialize(width, height)
	r.animation.Initialize(width, height)
	r.genWidth, r.genHeight = width, height
}

// write はフレームをシンクへ書き込み、失敗をログに残す
func (r *Runner) write(f frame.Frame) {
	if err := r.sink.WriteFrame(f); err != nil {
		log.Printf("出力デバイスへの書き込みに失敗: %v", err)
	}
}

// MockSink はテスト用のSink実装
type MockSink struct {
	Width    int
	Height   int
	WriteErr error
	Frames   []frame.Frame
}

// WriteFrame は書き込まれたフレームを記録する
func (m *MockSink) WriteFrame(f frame.Frame) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Frames = append(m.Frames, f)
	return nil
}

// Resolution は設定されたサイズを返す
func (m *MockSink) Resolution() (width, height int) {
	return m.Width, m.Height
}

// MockDetector はテスト用のConsumerDetector実装
type MockDetector struct {
	Consumers int
	Calls     int
}

// Count は設定されたコンシューマ数を返し、呼び出し回数を記録する
func (m *MockDetector) Count() int {
	m.Calls++
	return m.Consumers
}
