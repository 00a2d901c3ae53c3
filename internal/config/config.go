package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"genei/internal/camera"
)

// minDuration はエフェクト関連の継続時間に許す最小値
const minDuration = Duration(10 * time.Millisecond)

// Config はアプリケーション全体の設定を保持する構造体
// 起動時に構築された後は読み取り専用として扱う
type Config struct {
	Camera CameraConfig `yaml:"camera"`
	Output OutputConfig `yaml:"output"`
	Effect EffectConfig `yaml:"effect"`
}

// CameraConfig は物理カメラ関連の設定
type CameraConfig struct {
	Device       string            `yaml:"device"`        // デバイスパス（空文字列で自動検出）
	Resolution   camera.Preference `yaml:"resolution"`    // 解像度の選択方針
	OnDemand     bool              `yaml:"on_demand"`     // コンシューマ存在時のみカメラを開く
	PollInterval Duration          `yaml:"poll_interval"` // 切断されたカメラへの再接続間隔
}

// OutputConfig は仮想出力デバイス関連の設定
type OutputConfig struct {
	Device string `yaml:"device"` // v4l2loopbackデバイスパス
}

// EffectConfig はエフェクト発動タイミングの設定
type EffectConfig struct {
	MinInterval        Duration `yaml:"min_interval"`        // 発動間隔の下限
	MaxInterval        Duration `yaml:"max_interval"`        // 発動間隔の上限
	EffectDuration     Duration `yaml:"effect_duration"`     // アニメーションの継続時間
	TransitionDuration Duration `yaml:"transition_duration"` // 切り替えパターンの継続時間
	StartDelay         Duration `yaml:"start_delay"`         // 初回発動までの固定遅延（負値でランダム）
	Cycles             int      `yaml:"cycles"`              // 発動回数の上限（0で無制限）
	TestMode           bool     `yaml:"test_mode"`           // 起動直後に発動する動作確認モード
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Device:       "",
			Resolution:   camera.PreferenceMedium,
			OnDemand:     true,
			PollInterval: Duration(3 * time.Second),
		},
		Output: OutputConfig{
			Device: "/dev/video2",
		},
		Effect: EffectConfig{
			MinInterval:        Duration(1 * time.Minute),
			MaxInterval:        Duration(60 * time.Minute),
			EffectDuration:     Duration(5 * time.Second),
			TransitionDuration: Duration(500 * time.Millisecond),
			StartDelay:         Duration(-1),
			Cycles:             0,
			TestMode:           false,
		},
	}
}

// Load は設定を読み込む
// デフォルト値 → GENEI_CONFIGで指定されたYAMLファイル → 環境変数の順に上書きする
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GENEI_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("環境変数の解釈に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの内容で設定を上書きする
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv はGENEI_*環境変数で設定を上書きする
func (c *Config) applyEnv() error {
	c.Camera.Device = getEnvOrDefault("GENEI_CAMERA_DEVICE", c.Camera.Device)
	c.Output.Device = getEnvOrDefault("GENEI_OUTPUT_DEVICE", c.Output.Device)

	if v := os.Getenv("GENEI_RESOLUTION"); v != "" {
		pref, err := camera.ParsePreference(v)
		if err != nil {
			return fmt.Errorf("GENEI_RESOLUTION: %w", err)
		}
		c.Camera.Resolution = pref
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"GENEI_MIN_INTERVAL", &c.Effect.MinInterval},
		{"GENEI_MAX_INTERVAL", &c.Effect.MaxInterval},
		{"GENEI_EFFECT_DURATION", &c.Effect.EffectDuration},
		{"GENEI_TRANSITION_DURATION", &c.Effect.TransitionDuration},
		{"GENEI_START_DELAY", &c.Effect.StartDelay},
		{"GENEI_POLL_INTERVAL", &c.Camera.PollInterval},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = Duration(parsed)
		}
	}

	if v := os.Getenv("GENEI_CYCLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GENEI_CYCLES の解釈に失敗: %w", err)
		}
		c.Effect.Cycles = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"GENEI_ON_DEMAND", &c.Camera.OnDemand},
		{"GENEI_TEST_MODE", &c.Effect.TestMode},
	}
	for _, b := range bools {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s の解釈に失敗: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Output.Device == "" {
		return fmt.Errorf("出力デバイスが設定されていません")
	}

	switch c.Camera.Resolution {
	case camera.PreferenceLow, camera.PreferenceMedium, camera.PreferenceHigh:
	default:
		return fmt.Errorf("無効な解像度指定: %q", c.Camera.Resolution)
	}

	if c.Camera.PollInterval <= 0 {
		return fmt.Errorf("無効なポーリング間隔: %s", FormatDuration(time.Duration(c.Camera.PollInterval)))
	}

	if c.Effect.MinInterval <= 0 {
		return fmt.Errorf("無効な最小発動間隔: %s", FormatDuration(time.Duration(c.Effect.MinInterval)))
	}
	if c.Effect.MaxInterval < c.Effect.MinInterval {
		return fmt.Errorf("最大発動間隔 (%s) が最小発動間隔 (%s) を下回っています",
			FormatDuration(time.Duration(c.Effect.MaxInterval)),
			FormatDuration(time.Duration(c.Effect.MinInterval)))
	}
	if c.Effect.EffectDuration < minDuration {
		return fmt.Errorf("エフェクト時間が短すぎます: %s", FormatDuration(time.Duration(c.Effect.EffectDuration)))
	}
	if c.Effect.TransitionDuration < minDuration {
		return fmt.Errorf("遷移時間が短すぎます: %s", FormatDuration(time.Duration(c.Effect.TransitionDuration)))
	}
	if c.Effect.Cycles < 0 {
		return fmt.Errorf("無効なサイクル数: %d", c.Effect.Cycles)
	}

	return nil
}

// HasStartDelay は固定の開始遅延が設定されているかを返す
// 未設定（負値）の場合はランダムな遅延を引く
func (c *Config) HasStartDelay() bool {
	return c.Effect.StartDelay >= 0
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
