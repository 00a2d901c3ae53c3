package filter

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"genei/internal/camera"
	"genei/internal/config"
	"genei/internal/frame"
)

// CameraState はカメラライフサイクルの状態
type CameraState string

const (
	// CameraIdle はコンシューマ不在でカメラを閉じている状態
	CameraIdle CameraState = "idle"
	// CameraConnecting はカメラへの接続を試みている状態
	CameraConnecting CameraState = "connecting"
	// CameraActive はカメラからフレームを取得している状態
	CameraActive CameraState = "active"
	// CameraUnavailable はカメラを見失い、間隔を空けて再接続を試みている状態
	CameraUnavailable CameraState = "unavailable"
)

// CaptureSource は物理カメラの獲得と読み取りの境界
type CaptureSource interface {
	Open(device string, pref camera.Preference) error
	Detect(pref camera.Preference, skipDevice string) error
	CaptureFrame() (frame.Frame, error)
	Close() error
	IsOpen() bool
	Device() string
	Resolution() camera.Resolution
	FPS() int
}

// TickResult は1ティックぶんのライフサイクル処理の結果
type TickResult struct {
	State CameraState
	Frame frame.Frame // ACTIVEで取得できたフレーム
	Skip  bool        // ACTIVEだが空フレームだったため、このティックの残りを飛ばす
}

// Lifecycle はコンシューマの有無に応じて物理カメラを獲得・解放する
// 状態遷移はすべてTickの中で同期的に完結する。オンデマンドでない
// モードでは起動時に開いたままACTIVEに留まり、コンシューマの有無を
// 無視する
type Lifecycle struct {
	capture      CaptureSource
	device       string
	outputDevice string
	pref         camera.Preference
	pollInterval time.Duration
	onDemand     bool

	state     CameraState
	lastPoll  time.Time
	sessionID string
}

// NewLifecycle はLifecycleを作成する
// outputDeviceは自動検出時に候補から除外する合成デバイスのパス
func NewLifecycle(capture CaptureSource, cfg config.CameraConfig, outputDevice string) *Lifecycle {
	return &Lifecycle{
		capture:      capture,
		device:       cfg.Device,
		outputDevice: outputDevice,
		pref:         cfg.Resolution,
		pollInterval: time.Duration(cfg.PollInterval),
		onDemand:     cfg.OnDemand,
		state:        CameraIdle,
	}
}

// Start は非オンデマンドモードで起動時にカメラを開く
// 失敗は起動時致命エラー。オンデマンドモードでは何もしない
func (l *Lifecycle) Start() error {
	if l.onDemand {
		return nil
	}
	if err := l.connect(); err != nil {
		return fmt.Errorf("カメラのオープンに失敗: %w", err)
	}
	l.sessionID = uuid.New().String()
	l.state = CameraActive
	res := l.capture.Resolution()
	log.Printf("カメラに接続しました: %s %s %dfps (セッション %s)", l.capture.Device(), res, l.capture.FPS(), l.sessionID)
	return nil
}

// Tick は1ティックぶん状態を進める
// hasConsumersは呼び出し側がこのティックで一度だけ読んだ値を渡す。
// コンシューマがいなくなった瞬間、どの状態からでもIDLEへ戻る
func (l *Lifecycle) Tick(now time.Time, hasConsumers bool) TickResult {
	if l.onDemand && !hasConsumers {
		l.release()
		return TickResult{State: l.state}
	}

	switch l.state {
	case CameraIdle:
		l.sessionID = uuid.New().String()
		l.state = CameraConnecting
		log.Printf("コンシューマを検出しました。カメラへ接続します (セッション %s)", l.sessionID)
	case CameraConnecting:
		l.tryConnect(now)
	case CameraUnavailable:
		if now.Sub(l.lastPoll) >= l.pollInterval {
			l.lastPoll = now
			l.tryConnect(now)
		}
	}

	if l.state != CameraActive {
		return TickResult{State: l.state}
	}
	return l.pull(now)
}

// Close はカメラが開いていれば解放する
func (l *Lifecycle) Close() {
	if !l.capture.IsOpen() {
		return
	}
	if err := l.capture.Close(); err != nil {
		log.Printf("カメラのクローズに失敗: %v", err)
	}
}

// State は現在の状態を返す
func (l *Lifecycle) State() CameraState {
	return l.state
}

// SessionID は現在の撮影セッションのIDを返す。セッション外は空文字列
func (l *Lifecycle) SessionID() string {
	return l.sessionID
}

// CameraResolution は接続中のカメラの解像度を返す
func (l *Lifecycle) CameraResolution() camera.Resolution {
	return l.capture.Resolution()
}

// CameraFPS は接続中のカメラのフレームレートを返す
func (l *Lifecycle) CameraFPS() int {
	return l.capture.FPS()
}

// release はカメラを解放してIDLEへ戻す
func (l *Lifecycle) release() {
	if l.state == CameraIdle {
		return
	}
	if l.capture.IsOpen() {
		if err := l.capture.Close(); err != nil {
			log.Printf("カメラのクローズに失敗: %v", err)
		}
	}
	log.Printf("コンシューマがいなくなりました。カメラを解放します (セッション %s)", l.sessionID)
	l.sessionID = ""
	l.state = CameraIdle
}

// tryConnect は接続を1回試みる。失敗したらポーリングへ移る
func (l *Lifecycle) tryConnect(now time.Time) {
	if err := l.connect(); err != nil {
		log.Printf("カメラへの接続に失敗: %v", err)
		l.state = CameraUnavailable
		l.lastPoll = now
		return
	}
	l.state = CameraActive
	res := l.capture.Resolution()
	log.Printf("カメラに接続しました: %s %s %dfps (セッション %s)", l.capture.Device(), res, l.capture.FPS(), l.sessionID)
}

// connect は設定に応じて指定デバイスを開くか自動検出する
func (l *Lifecycle) connect() error {
	if l.device != "" {
		return l.capture.Open(l.device, l.pref)
	}
	return l.capture.Detect(l.pref, l.outputDevice)
}

// pull はACTIVE状態でフレームを1枚取得する
// 読み取りエラーはデバイス喪失とみなして即座にUNAVAILABLEへ降格し、
// 空フレームは降格せずこのティックだけ飛ばす
func (l *Lifecycle) pull(now time.Time) TickResult {
	f, err := l.capture.CaptureFrame()
	if err != nil {
		log.Printf("フレームの取得に失敗: %v。カメラをポーリングへ降格します", err)
		if cerr := l.capture.Close(); cerr != nil {
			log.Printf("カメラのクローズに失敗: %v", cerr)
		}
		l.state = CameraUnavailable
		l.lastPoll = now
		return TickResult{State: CameraUnavailable}
	}
	if f.Empty() {
		return TickResult{State: CameraActive, Skip: true}
	}
	return TickResult{State: CameraActive, Frame: f}
}

// MockCaptureSource はテスト用のCaptureSource実装
type MockCaptureSource struct {
	OpenErr     error
	DetectErr   error
	ReadErr     error
	Frames      []frame.Frame // CaptureFrameが順に返す。尽きたら最後を返し続ける
	Res         camera.Resolution
	FPSValue    int
	Opened      bool
	DevicePath  string
	OpenCalls   int
	DetectCalls int
	CloseCalls  int
	readIndex   int
}

// Open は設定されたエラーを返すか、オープン状態にする
func (m *MockCaptureSource) Open(device string, _ camera.Preference) error {
	m.OpenCalls++
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.Opened = true
	m.DevicePath = device
	return nil
}

// Detect は設定されたエラーを返すか、オープン状態にする
func (m *MockCaptureSource) Detect(_ camera.Preference, _ string) error {
	m.DetectCalls++
	if m.DetectErr != nil {
		return m.DetectErr
	}
	m.Opened = true
	if m.DevicePath == "" {
		m.DevicePath = "/dev/video0"
	}
	return nil
}

// CaptureFrame は設定されたフレーム列を順に返す
func (m *MockCaptureSource) CaptureFrame() (frame.Frame, error) {
	if m.ReadErr != nil {
		return frame.Frame{}, m.ReadErr
	}
	if len(m.Frames) == 0 {
		return frame.Frame{}, nil
	}
	f := m.Frames[m.readIndex]
	if m.readIndex < len(m.Frames)-1 {
		m.readIndex++
	}
	return f, nil
}

// Close はクローズ回数を記録する
func (m *MockCaptureSource) Close() error {
	m.CloseCalls++
	m.Opened = false
	return nil
}

// IsOpen はオープン状態を返す
func (m *MockCaptureSource) IsOpen() bool { return m.Opened }

// Device はオープンしたデバイスパスを返す
func (m *MockCaptureSource) Device() string { return m.DevicePath }

// Resolution は設定された解像度を返す
func (m *MockCaptureSource) Resolution() camera.Resolution { return m.Res }

// FPS は設定されたフレームレートを返す
func (m *MockCaptureSource) FPS() int { return m.FPSValue }
