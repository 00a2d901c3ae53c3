package camera

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log"
	"os"

	"github.com/blackjack/webcam"

	"genei/internal/frame"
)

const (
	// pixelFormatYUYV はYUYV 4:2:2のFourCC
	pixelFormatYUYV = webcam.PixelFormat(0x56595559)
	// pixelFormatMJPEG はMotion-JPEGのFourCC
	pixelFormatMJPEG = webcam.PixelFormat(0x47504A4D)

	// DefaultFPS はフレームレートの既定値
	DefaultFPS = 30
	// maxFPS はこれを超えるフレームレートを異常値とみなす閾値
	maxFPS = 120

	// waitTimeoutSec はフレーム待ちのタイムアウト（秒）
	waitTimeoutSec = 1

	// probeDeviceCount は自動検出で走査する /dev/videoN の個数
	probeDeviceCount = 10

	// 解像度を列挙できない場合の要求値
	defaultWidth  = 1280
	defaultHeight = 720
)

// ClampFPS は範囲外のフレームレートを既定値へ丸める
func ClampFPS(fps int) int {
	if fps <= 0 || fps > maxFPS {
		return DefaultFPS
	}
	return fps
}

// Device はV4L2キャプチャデバイスの操作を抽象化する
// *webcam.Webcam がこれを満たす。テストではMockDeviceを使う
type Device interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	GetSupportedFrameSizes(f webcam.PixelFormat) []webcam.FrameSize
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetFramerate(fps float32) error
	GetFramerate() (float32, error)
	StartStreaming() error
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	StopStreaming() error
	Close() error
}

// OpenFunc はデバイスパスからDeviceを開く関数
type OpenFunc func(path string) (Device, error)

// openWebcam は実デバイスをblackjack/webcam経由で開く
func openWebcam(path string) (Device, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// chooseFormat は対応フォーマットからYUYVを優先し、なければMJPEGへ
// 落とす。どちらもないデバイスは扱えない
func chooseFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	if _, ok := formats[pixelFormatYUYV]; ok {
		return pixelFormatYUYV, true
	}
	if _, ok := formats[pixelFormatMJPEG]; ok {
		return pixelFormatMJPEG, true
	}
	return 0, false
}

// Capture は物理カメラのセッションを管理する
// openとcloseを繰り返す前提で、常に1セッションのみ保持する
type Capture struct {
	open   OpenFunc
	dev    Device
	device string
	format webcam.PixelFormat
	res    Resolution
	fps    int
}

// NewCapture は実デバイスを開くCaptureを作成する
func NewCapture() *Capture {
	return &Capture{open: openWebcam}
}

// Open は指定デバイスを開き、解像度とフォーマットを交渉して
// ストリーミングを開始する。既存のセッションがあれば先に閉じる
func (c *Capture) Open(device string, pref Preference) error {
	if c.dev != nil {
		_ = c.Close()
	}

	dev, err := c.open(device)
	if err != nil {
		return fmt.Errorf("カメラのオープンに失敗 (%s): %w", device, err)
	}

	format, ok := chooseFormat(dev.GetSupportedFormats())
	if !ok {
		_ = dev.Close()
		return fmt.Errorf("対応するピクセルフォーマットがありません: %s", device)
	}

	// 解像度を列挙できないデバイスはドライバーの既定値に任せる
	reqW, reqH := uint32(defaultWidth), uint32(defaultHeight)
	if res, found := SelectResolution(supportedResolutions(dev.GetSupportedFrameSizes(format)), pref); found {
		reqW, reqH = uint32(res.Width), uint32(res.Height)
	}

	// 要求値ではなくドライバーが受理した値を正とする
	negotiated, w, h, err := dev.SetImageFormat(format, reqW, reqH)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("フォーマット交渉に失敗 (%s): %w", device, err)
	}

	if err := dev.SetFramerate(DefaultFPS); err != nil {
		// 固定フレームレートのデバイスでは失敗するが、既定値で駆動できる
		log.Printf("フレームレートの設定に失敗 (%s): %v", device, err)
	}

	// 駆動レートもドライバーの報告値を正とし、異常値は既定値へ丸める
	fps := DefaultFPS
	if rate, err := dev.GetFramerate(); err == nil {
		fps = ClampFPS(int(rate))
	} else {
		log.Printf("フレームレートの取得に失敗 (%s): %v", device, err)
	}

	if err := dev.StartStreaming(); err != nil {
		_ = dev.Close()
		return fmt.Errorf("ストリーミングの開始に失敗 (%s): %w", device, err)
	}

	c.dev = dev
	c.device = device
	c.format = negotiated
	c.res = Resolution{Width: int(w), Height: int(h)}
	c.fps = fps
	return nil
}

// Detect は /dev/video0 から /dev/video9 までを昇順に走査し、
// オープンとテスト読み取りの両方に成功した最初のデバイスを開く
// skipDevice（仮想出力デバイス）は走査から除外する
// テスト読み取りに失敗したデバイスは解放してから次へ進む
func (c *Capture) Detect(pref Preference, skipDevice string) error {
	for i := 0; i < probeDeviceCount; i++ {
		device := fmt.Sprintf("/dev/video%d", i)
		if device == skipDevice {
			continue
		}
		if _, err := os.Stat(device); err != nil {
			continue
		}
		if err := c.Open(device, pref); err != nil {
			continue
		}
		if f, err := c.CaptureFrame(); err == nil && !f.Empty() {
			log.Printf("カメラを検出しました: %s (%s)", device, c.res)
			return nil
		}
		_ = c.Close()
	}
	return fmt.Errorf("利用可能なカメラが見つかりません")
}

// CaptureFrame は次のフレームを取得してRGB24へ変換する
// タイムアウトや空フレームは空のFrameとnilエラーで返す
// デバイス喪失などの読み取りエラーはエラーとして返す
func (c *Capture) CaptureFrame() (frame.Frame, error) {
	if c.dev == nil {
		return frame.Frame{}, fmt.Errorf("カメラが開かれていません")
	}

	err := c.dev.WaitForFrame(waitTimeoutSec)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return frame.Frame{}, nil
	default:
		return frame.Frame{}, fmt.Errorf("フレーム待ちに失敗: %w", err)
	}

	data, err := c.dev.ReadFrame()
	if err != nil {
		return frame.Frame{}, fmt.Errorf("フレームの読み取りに失敗: %w", err)
	}
	if len(data) == 0 {
		return frame.Frame{}, nil
	}

	return c.decode(data)
}

// decode は交渉済みフォーマットのバイト列をRGB24フレームへ変換する
func (c *Capture) decode(data []byte) (frame.Frame, error) {
	switch c.format {
	case pixelFormatYUYV:
		return DecodeYUYV(data, c.res.Width, c.res.Height), nil
	case pixelFormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			// 壊れたJPEGは空フレーム扱いにして次のフレームを待つ
			return frame.Frame{}, nil
		}
		return frame.FromImage(img), nil
	}
	return frame.Frame{}, fmt.Errorf("未対応のピクセルフォーマットです: %#x", uint32(c.format))
}

// Close はストリーミングを停止してデバイスを解放する
// 未オープンの場合は何もしない
func (c *Capture) Close() error {
	if c.dev == nil {
		return nil
	}
	_ = c.dev.StopStreaming()
	err := c.dev.Close()
	c.dev = nil
	c.device = ""
	c.res = Resolution{}
	c.fps = 0
	if err != nil {
		return fmt.Errorf("カメラのクローズに失敗: %w", err)
	}
	return nil
}

// IsOpen はカメラが開かれているかを返す
func (c *Capture) IsOpen() bool {
	return c.dev != nil
}

// Device は現在のデバイスパスを返す
func (c *Capture) Device() string {
	return c.device
}

// Resolution は交渉済みの解像度を返す
func (c *Capture) Resolution() Resolution {
	return c.res
}

// FPS は現在のフレームレートを返す
func (c *Capture) FPS() int {
	return c.fps
}

// DecodeYUYV はYUYV 4:2:2 (BT.601) のバイト列をRGB24フレームへ変換する
// バッファが指定サイズに満たない場合は空のFrameを返す
func DecodeYUYV(data []byte, width, height int) frame.Frame {
	if width <= 0 || height <= 0 || len(data) < width*height*2 {
		return frame.Frame{}
	}

	f := frame.New(width, height)
	limit := width * height * 2
	di := 0
	for i := 0; i+3 < limit; i += 4 {
		y0 := float64(data[i])
		u := float64(data[i+1]) - 128
		y1 := float64(data[i+2])
		v := float64(data[i+3]) - 128

		f.Pix[di], f.Pix[di+1], f.Pix[di+2] = yuvToRGB(y0, u, v)
		f.Pix[di+3], f.Pix[di+4], f.Pix[di+5] = yuvToRGB(y1, u, v)
		di += 6
	}
	return f
}

// yuvToRGB はBT.601の係数で1画素を変換する
func yuvToRGB(y, u, v float64) (byte, byte, byte) {
	r := y + 1.402*v
	g := y - 0.344136*u - 0.714136*v
	b := y + 1.772*u
	return clampByte(r), clampByte(g), clampByte(b)
}

// clampByte は変換結果を0〜255へ丸める
func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

// MockDevice はテスト用のDevice実装
type MockDevice struct {
	Formats      map[webcam.PixelFormat]string
	FrameSizes   []webcam.FrameSize
	Frames       [][]byte // ReadFrameが順に返すデータ（末尾以降は最後の要素を繰り返す）
	AdjustWidth  uint32   // 非ゼロの場合、交渉結果としてこの幅を返す
	AdjustHeight uint32   // 非ゼロの場合、交渉結果としてこの高さを返す
	WaitErr      error
	ReadErr      error
	SetErr       error
	FramerateErr error   // SetFramerateが返すエラー
	Rate         float32 // GetFramerateが報告するレート（0は異常値の報告を模す）
	RateErr      error   // GetFramerateが返すエラー
	Streaming    bool
	Closed       bool
	readIndex    int
}

// GetSupportedFormats はモックの対応フォーマットを返す
func (m *MockDevice) GetSupportedFormats() map[webcam.PixelFormat]string {
	return m.Formats
}

// GetSupportedFrameSizes はモックのフレームサイズ一覧を返す
func (m *MockDevice) GetSupportedFrameSizes(_ webcam.PixelFormat) []webcam.FrameSize {
	return m.FrameSizes
}

// SetImageFormat は要求値（または設定された調整値）をそのまま受理する
func (m *MockDevice) SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error) {
	if m.SetErr != nil {
		return 0, 0, 0, m.SetErr
	}
	w, h := width, height
	if m.AdjustWidth != 0 {
		w = m.AdjustWidth
	}
	if m.AdjustHeight != 0 {
		h = m.AdjustHeight
	}
	return f, w, h, nil
}

// SetFramerate は設定されたエラーを返す
func (m *MockDevice) SetFramerate(_ float32) error {
	return m.FramerateErr
}

// GetFramerate は設定されたレートを返す
func (m *MockDevice) GetFramerate() (float32, error) {
	if m.RateErr != nil {
		return 0, m.RateErr
	}
	return m.Rate, nil
}

// StartStreaming はストリーミング開始を記録する
func (m *MockDevice) StartStreaming() error {
	m.Streaming = true
	return nil
}

// WaitForFrame は設定されたエラーを返す
func (m *MockDevice) WaitForFrame(_ uint32) error {
	return m.WaitErr
}

// ReadFrame は設定されたフレームデータを順に返す
func (m *MockDevice) ReadFrame() ([]byte, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if len(m.Frames) == 0 {
		return nil, nil
	}
	i := m.readIndex
	if i >= len(m.Frames) {
		i = len(m.Frames) - 1
	}
	m.readIndex++
	return m.Frames[i], nil
}

// StopStreaming はストリーミング停止を記録する
func (m *MockDevice) StopStreaming() error {
	m.Streaming = false
	return nil
}

// Close はクローズを記録する
func (m *MockDevice) Close() error {
	m.Closed = true
	return nil
}
