package camera

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blackjack/webcam"
)

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Area は画素数を返す
func (r Resolution) Area() int {
	return r.Width * r.Height
}

// String は "幅x高さ" 形式の文字列を返す
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Preference は解像度選択の方針を表す
type Preference string

const (
	// PreferenceLow は最小の解像度を選ぶ
	PreferenceLow Preference = "low"
	// PreferenceMedium は中間の解像度を選ぶ
	PreferenceMedium Preference = "medium"
	// PreferenceHigh は最大の解像度を選ぶ
	PreferenceHigh Preference = "high"
)

// ParsePreference は文字列を解像度選択方針へ変換する
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PreferenceLow, nil
	case "medium":
		return PreferenceMedium, nil
	case "high":
		return PreferenceHigh, nil
	}
	return "", fmt.Errorf("未知の解像度指定です: %q", s)
}

// commonResolutions はステップ・連続範囲へ当てはめる代表的な解像度の一覧
var commonResolutions = []Resolution{
	{Width: 320, Height: 240},
	{Width: 640, Height: 360},
	{Width: 640, Height: 480},
	{Width: 800, Height: 600},
	{Width: 1024, Height: 768},
	{Width: 1280, Height: 720},
	{Width: 1280, Height: 960},
	{Width: 1600, Height: 1200},
	{Width: 1920, Height: 1080},
	{Width: 2560, Height: 1440},
	{Width: 3840, Height: 2160},
}

// supportedResolutions はドライバーが報告するフレームサイズ記述子を解像度一覧へ変換する
// 離散値はそのまま採用し、ステップ・連続範囲には代表的な解像度のうち範囲に
// 収まるものを当てはめる。重複を除いて画素数の昇順で返す
func supportedResolutions(sizes []webcam.FrameSize) []Resolution {
	seen := make(map[Resolution]struct{})
	var list []Resolution

	add := func(r Resolution) {
		if r.Width <= 0 || r.Height <= 0 {
			return
		}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		list = append(list, r)
	}

	for _, fs := range sizes {
		// 離散サイズは最小値と最大値が一致する
		if fs.MinWidth == fs.MaxWidth && fs.MinHeight == fs.MaxHeight {
			add(Resolution{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)})
			continue
		}
		for _, r := range commonResolutions {
			if fitsRange(uint32(r.Width), fs.MinWidth, fs.MaxWidth, fs.StepWidth) &&
				fitsRange(uint32(r.Height), fs.MinHeight, fs.MaxHeight, fs.StepHeight) {
				add(r)
			}
		}
	}

	sortResolutions(list)
	return list
}

// fitsRange は値が範囲とステップ制約に合致するかを返す
func fitsRange(v, min, max, step uint32) bool {
	if v < min || v > max {
		return false
	}
	if step == 0 {
		return true
	}
	return (v-min)%step == 0
}

// sortResolutions は解像度一覧を画素数の昇順に整列する
func sortResolutions(list []Resolution) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Area() != list[j].Area() {
			return list[i].Area() < list[j].Area()
		}
		return list[i].Width < list[j].Width
	})
}

// SelectResolution は選択方針に従って解像度を選ぶ
// low は最小、high は最大、medium は昇順リストの中央要素
// （要素数2以下では最大）を選ぶ。空のリストに対しては false を返す
func SelectResolution(list []Resolution, pref Preference) (Resolution, bool) {
	if len(list) == 0 {
		return Resolution{}, false
	}

	sorted := make([]Resolution, len(list))
	copy(sorted, list)
	sortResolutions(sorted)

	switch pref {
	case PreferenceLow:
		return sorted[0], true
	case PreferenceHigh:
		return sorted[len(sorted)-1], true
	default:
		n := len(sorted)
		if n <= 2 {
			return sorted[n-1], true
		}
		return sorted[(n+1)/2-1], true
	}
}
