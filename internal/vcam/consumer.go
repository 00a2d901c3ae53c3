package vcam

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Detector は仮想デバイスのコンシューマ(読み取り側)の有無を調べる
// sysfsのカウンタを優先し、読めない環境では/procのfdスキャンへ
// フォールバックする。どちらも失敗した場合は0を返し、呼び出し側を
// ブロックさせない
type Detector struct {
	device   string
	sysfs    []string
	procRoot string
	selfPID  int
}

// NewDetector は指定デバイスのDetectorを作成する
func NewDetector(device string) *Detector {
	name := filepath.Base(device)
	return &Detector{
		device: device,
		sysfs: []string{
			filepath.Join("/sys/devices/virtual/video4linux", name, "open_count"),
			filepath.Join("/sys/class/video4linux", name, "open_count"),
			filepath.Join("/sys/devices/virtual/video4linux", name, "readers"),
		},
		procRoot: "/proc",
		selfPID:  os.Getpid(),
	}
}

// Count はコンシューマ数の推定値を返す
// 自分自身(書き込み側)のオープンは数に含めない
func (d *Detector) Count() int {
	if n, ok := d.countFromSysfs(); ok {
		return n
	}
	if n, ok := d.countFromProc(); ok {
		return n
	}
	return 0
}

// HasConsumers はコンシューマが1つ以上いるかを返す
func (d *Detector) HasConsumers() bool {
	return d.Count() > 0
}

// countFromSysfs はsysfsのカウンタファイルから読み取る
// 候補のうち最初に読めたものを採用し、自分の分を1引く
func (d *Detector) countFromSysfs() (int, bool) {
	for _, path := range d.sysfs {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		n--
		if n < 0 {
			n = 0
		}
		return n, true
	}
	return 0, false
}

// countFromProc は/proc/*/fdを走査してデバイスを開いているプロセスを数える
// 1プロセスにつき1コンシューマと数え、自プロセスは除外する
func (d *Detector) countFromProc() (int, bool) {
	entries, err := os.ReadDir(d.procRoot)
	if err != nil {
		return 0, false
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if pid == d.selfPID {
			continue
		}

		fdDir := filepath.Join(d.procRoot, e.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			// 他ユーザーのプロセスは読めないことがある
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if target == d.device {
				count++
				break
			}
		}
	}
	return count, true
}
