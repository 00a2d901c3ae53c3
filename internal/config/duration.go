package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration は時間文字列を受け付けるtime.Durationの別名型
// YAMLファイル・環境変数・フラグで共通の文法を使う
type Duration time.Duration

// ParseDuration は時間文字列をtime.Durationへ変換する
// "500ms" "5s" "2m" "1h" の短縮単位と "seconds" などの英語単位名を
// 受け付け、単位のない整数はミリ秒とみなす
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return 0, fmt.Errorf("時間指定が空です")
	}

	// 数値部と単位部に分割する
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	numPart := trimmed[:i]
	unitPart := strings.TrimSpace(trimmed[i:])

	if numPart == "" {
		return 0, fmt.Errorf("数値がありません: %q", s)
	}
	value, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("数値の解釈に失敗: %w", err)
	}

	var unit time.Duration
	switch unitPart {
	case "", "ms", "msec", "millisecond", "milliseconds":
		unit = time.Millisecond
	case "s", "sec", "second", "seconds":
		unit = time.Second
	case "m", "min", "minute", "minutes":
		unit = time.Minute
	case "h", "hour", "hours":
		unit = time.Hour
	default:
		return 0, fmt.Errorf("未知の時間単位です: %q", unitPart)
	}

	return time.Duration(value) * unit, nil
}

// FormatDuration はtime.Durationを時間文字列へ整形する
// 1秒未満はミリ秒表記、それ以上は "1h2m3s" 形式でゼロの単位を省く
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}

// UnmarshalYAML は設定ファイル中の時間文字列をDurationへ変換する
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML はDurationを時間文字列として出力する
func (d Duration) MarshalYAML() (interface{}, error) {
	return FormatDuration(time.Duration(d)), nil
}
