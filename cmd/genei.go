// Package main はgeneiコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genei/internal/camera"
	"genei/internal/config"
	"genei/internal/effects"
	"genei/internal/filter"
	"genei/internal/vcam"
)

func main() {
	// コマンドラインオプション
	var (
		device        = flag.String("device", "", "入力カメラのデバイスパス (デフォルト: 自動検出)")
		output        = flag.String("output", "", "仮想出力デバイスのパス (デフォルト: /dev/video2)")
		resolution    = flag.String("resolution", "", "解像度の選択方針 low|medium|high (デフォルト: medium)")
		minInterval   = flag.String("min-interval", "", "エフェクト発動間隔の下限 (デフォルト: 1m)")
		maxInterval   = flag.String("max-interval", "", "エフェクト発動間隔の上限 (デフォルト: 60m)")
		effectDur     = flag.String("effect-duration", "", "アニメーションの継続時間 (デフォルト: 5s)")
		transitionDur = flag.String("transition-duration", "", "ノイズ表示の継続時間 (デフォルト: 500ms)")
		startDelay    = flag.String("start-delay", "", "初回発動までの固定遅延 (デフォルト: ランダム)")
		cycles        = flag.Int("cycles", -1, "エフェクト発動回数の上限 (デフォルト: 0 = 無制限)")
		onDemand      = flag.Bool("on-demand", true, "コンシューマがいる間だけカメラを開く")
		pollInterval  = flag.String("poll-interval", "", "カメラ再接続を試みる間隔 (デフォルト: 3s)")
		testMode      = flag.Bool("test", false, "起動直後にエフェクトを発動する")
		help          = flag.Bool("help", false, "ヘルプを表示")
	)
	flag.StringVar(device, "d", *device, "-device の別名")
	flag.StringVar(output, "o", *output, "-output の別名")
	flag.BoolVar(testMode, "t", *testMode, "-test の別名")
	flag.BoolVar(help, "h", *help, "-help の別名")

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("genei - 仮想カメラエフェクトフィルタ")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  genei [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *output != "" {
		cfg.Output.Device = *output
	}
	if *resolution != "" {
		pref, err := camera.ParsePreference(*resolution)
		if err != nil {
			log.Fatalf("解像度指定の解釈に失敗しました: %v", err)
		}
		cfg.Camera.Resolution = pref
	}

	durations := []struct {
		value *string
		dst   *config.Duration
	}{
		{minInterval, &cfg.Effect.MinInterval},
		{maxInterval, &cfg.Effect.MaxInterval},
		{effectDur, &cfg.Effect.EffectDuration},
		{transitionDur, &cfg.Effect.TransitionDuration},
		{startDelay, &cfg.Effect.StartDelay},
		{pollInterval, &cfg.Camera.PollInterval},
	}
	for _, d := range durations {
		if *d.value == "" {
			continue
		}
		parsed, err := config.ParseDuration(*d.value)
		if err != nil {
			log.Fatalf("時間指定の解釈に失敗しました: %v", err)
		}
		*d.dst = config.Duration(parsed)
	}

	if *cycles >= 0 {
		cfg.Effect.Cycles = *cycles
	}
	if *testMode {
		cfg.Effect.TestMode = true
	}
	// 既定値trueのため、明示されたときだけ反映する
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "on-demand" {
			cfg.Camera.OnDemand = *onDemand
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定の検証に失敗しました: %v", err)
	}

	// SIGINT/SIGTERMでティックループを止める
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("genei を起動します: 出力先 %s", cfg.Output.Device)
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("フィルタの起動に失敗しました: %v", err)
	}
}

// run は全コンポーネントを組み立ててティックループを回す
func run(ctx context.Context, cfg *config.Config) error {
	out := vcam.NewOutput()
	if err := out.Open(cfg.Output.Device, vcam.DefaultWidth, vcam.DefaultHeight); err != nil {
		return err
	}
	defer out.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	runner := filter.NewRunner(
		cfg,
		camera.NewCapture(),
		out,
		vcam.NewDetector(cfg.Output.Device),
		effects.NewStatic(rng),
		effects.NewMatrix(rng),
		rng,
	)
	return runner.Run(ctx)
}
