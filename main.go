package main

import (
	"context"
	"log"
	"math/rand"
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
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// SIGINT/SIGTERMでティックループを止める
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("フィルタの起動に失敗しました: %v", err)
	}
}

// run は全コンポーネントを組み立ててティックループを回す
func run(ctx context.Context, cfg *config.Config) error {
	// 仮想デバイスのフォーマットは起動時に一度だけ交渉する
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
