// Package vcam はv4l2loopback仮想デバイスへの出力とコンシューマ検出を担う
package vcam

import (
	"fmt"
	"log"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"genei/internal/frame"
)

// カメラ接続前にフォーマット交渉へ使う既定サイズ
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// deviceIO は出力デバイスへの低レベル操作を抽象化する
// 実体はunixDeviceIO、テストではMockDeviceIOを使う
type deviceIO interface {
	Open(path string) error
	Ioctl(req uintptr, arg []byte) error
	Write(p []byte) (int, error)
	Close() error
}

// unixDeviceIO はx/sys/unix経由で実デバイスを操作する
type unixDeviceIO struct {
	fd int
}

func (u *unixDeviceIO) Open(path string) error {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return err
	}
	u.fd = fd
	return nil
}

func (u *unixDeviceIO) Ioctl(req uintptr, arg []byte) error {
	if len(arg) == 0 {
		return unix.EINVAL
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(u.fd), req, uintptr(unsafe.Pointer(&arg[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func (u *unixDeviceIO) Write(p []byte) (int, error) {
	return unix.Write(u.fd, p)
}

func (u *unixDeviceIO) Close() error {
	return unix.Close(u.fd)
}

// Output は仮想出力デバイスへのフレーム書き込みを担う
// オープン時に一度だけフォーマットを交渉し、以後はフレーム側を
// 交渉済みサイズへ合わせる。コンシューマ接続後の再交渉はドライバーが
// 許さないため、デバイスを開き直すことはない
type Output struct {
	io     deviceIO
	device string
	format PixFormat
	opened bool
}

// NewOutput は実デバイスへ書き込むOutputを作成する
func NewOutput() *Output {
	return &Output{io: &unixDeviceIO{}}
}

// Open は仮想デバイスを開いてYUYV固定フォーマットを交渉する
// デバイスが存在しない、または交渉が拒否された場合はエラーを返す
func (o *Output) Open(device string, width, height int) error {
	if _, err := os.Stat(device); err != nil {
		log.Println("ヒント: v4l2loopbackモジュールがロードされているか確認してください")
		return fmt.Errorf("仮想デバイスが存在しません (%s): %w", device, err)
	}

	if err := o.io.Open(device); err != nil {
		return fmt.Errorf("仮想デバイスのオープンに失敗 (%s): %w", device, err)
	}

	buf := encodeFormat(NewPixFormat(width, height))
	if err := o.io.Ioctl(vidiocSFmt, buf); err != nil {
		_ = o.io.Close()
		return fmt.Errorf("出力フォーマットの交渉に失敗 (%s): %w", device, err)
	}

	// ドライバーが調整した値を正とする
	o.format = decodeFormat(buf)
	o.device = device
	o.opened = true
	log.Printf("仮想デバイスを開きました: %s (%dx%d YUYV)", device, o.format.Width, o.format.Height)
	return nil
}

// WriteFrame はフレームを交渉済みサイズへ変換して書き込む
// 空フレームは何もしない。変換後のバイト数が交渉値と一致しない場合は
// 警告を出した上でそのまま書き込む
func (o *Output) WriteFrame(f frame.Frame) error {
	if !o.opened {
		return fmt.Errorf("仮想デバイスが開かれていません")
	}
	if f.Empty() {
		return nil
	}

	w, h := int(o.format.Width), int(o.format.Height)
	if f.Width != w || f.Height != h {
		f = frame.Resize(f, w, h)
	}

	data := EncodeYUYV(f)
	if len(data) != int(o.format.SizeImage) {
		log.Printf("警告: 書き込みサイズが交渉値と一致しません: %d / %dバイト", len(data), o.format.SizeImage)
	}
	if _, err := o.io.Write(data); err != nil {
		return fmt.Errorf("フレームの書き込みに失敗: %w", err)
	}
	return nil
}

// Close はデバイスを解放する
// 未オープンの場合は何もしない
func (o *Output) Close() error {
	if !o.opened {
		return nil
	}
	o.opened = false
	if err := o.io.Close(); err != nil {
		return fmt.Errorf("仮想デバイスのクローズに失敗: %w", err)
	}
	return nil
}

// Device は出力先のデバイスパスを返す
func (o *Output) Device() string {
	return o.device
}

// Resolution は交渉済みの出力サイズを返す
func (o *Output) Resolution() (width, height int) {
	return int(o.format.Width), int(o.format.Height)
}

// EncodeYUYV はRGB24フレームをYUYV 4:2:2 (BT.601) のバイト列へ変換する
// 色差は横に並ぶ2画素の平均から求める。幅が奇数の場合、行末の画素は
// YとUのみを書く
func EncodeYUYV(f frame.Frame) []byte {
	if f.Empty() {
		return nil
	}

	out := make([]byte, f.Width*f.Height*2)
	oi := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x += 2 {
			r0, g0, b0 := f.RGBAt(x, y)
			r1, g1, b1 := r0, g0, b0
			if x+1 < f.Width {
				r1, g1, b1 = f.RGBAt(x+1, y)
			}

			ar := (float64(r0) + float64(r1)) / 2
			ag := (float64(g0) + float64(g1)) / 2
			ab := (float64(b0) + float64(b1)) / 2
			u := -0.168736*ar - 0.331264*ag + 0.5*ab + 128
			v := 0.5*ar - 0.418688*ag - 0.081312*ab + 128

			out[oi] = lumaOf(r0, g0, b0)
			out[oi+1] = clampByte(u)
			oi += 2
			if x+1 < f.Width {
				out[oi] = lumaOf(r1, g1, b1)
				out[oi+1] = clampByte(v)
				oi += 2
			}
		}
	}
	return out
}

// lumaOf はBT.601の輝度を求める
func lumaOf(r, g, b byte) byte {
	return clampByte(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
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

// MockDeviceIO はテスト用のdeviceIO実装
type MockDeviceIO struct {
	OpenErr   error
	IoctlErr  error
	WriteErr  error
	Written   [][]byte // Writeが受け取ったバイト列
	OpenPath  string
	Closed    bool
	AdjustFmt *PixFormat // 非ゼロの場合、ioctl時にこの交渉結果を書き戻す
}

// Open はオープンされたパスを記録する
func (m *MockDeviceIO) Open(path string) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.OpenPath = path
	return nil
}

// Ioctl は要求をそのまま受理し、必要なら調整値を書き戻す
func (m *MockDeviceIO) Ioctl(_ uintptr, arg []byte) error {
	if m.IoctlErr != nil {
		return m.IoctlErr
	}
	if m.AdjustFmt != nil {
		copy(arg, encodeFormat(*m.AdjustFmt))
	}
	return nil
}

// Write は書き込まれたバイト列を記録する
func (m *MockDeviceIO) Write(p []byte) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	m.Written = append(m.Written, buf)
	return len(p), nil
}

// Close はクローズを記録する
func (m *MockDeviceIO) Close() error {
	m.Closed = true
	return nil
}
