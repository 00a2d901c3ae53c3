package filter

import (
	"math/rand"
	"testing"
	"time"

	"genei/internal/config"
	"genei/internal/frame"
)

// solidFrame は全画素が同じ値のテスト用フレームを作る
func solidFrame(width, height int, v byte) frame.Frame {
	f := frame.New(width, height)
	f.Fill(v, v, v)
	return f
}

// testEffectConfig は発動間隔を1秒に固定した決定的な設定を返す
func testEffectConfig() config.EffectConfig {
	return config.EffectConfig{
		MinInterval:        config.Duration(1 * time.Second),
		MaxInterval:        config.Duration(1 * time.Second),
		EffectDuration:     config.Duration(5 * time.Second),
		TransitionDuration: config.Duration(500 * time.Millisecond),
		StartDelay:         config.Duration(-1),
	}
}

func newTestSequencer(cfg config.EffectConfig) (*Sequencer, *MockTransitionGenerator, *MockAnimationGenerator) {
	tr := &MockTransitionGenerator{Frame: solidFrame(4, 2, 10)}
	an := &MockAnimationGenerator{Frame: solidFrame(4, 2, 20)}
	return NewSequencer(cfg, tr, an, rand.New(rand.NewSource(1))), tr, an
}

func TestSequencerPrime(t *testing.T) {
	t.Run("予約済みなら発動時刻を維持する", func(t *testing.T) {
		s, _, _ := newTestSequencer(testEffectConfig())
		t0 := time.Unix(100, 0)

		s.Prime(t0)
		first, ok := s.NextEffectTime()
		if !ok {
			t.Fatal("予約されていない")
		}
		if want := t0.Add(1 * time.Second); !first.Equal(want) {
			t.Errorf("発動時刻 = %v, want %v", first, want)
		}

		s.Prime(t0.Add(10 * time.Second))
		second, _ := s.NextEffectTime()
		if !second.Equal(first) {
			t.Errorf("再Primeで発動時刻が変わった: %v -> %v", first, second)
		}
	})

	t.Run("テストモードは即時発動する", func(t *testing.T) {
		cfg := testEffectConfig()
		cfg.TestMode = true
		s, _, _ := newTestSequencer(cfg)
		t0 := time.Unix(100, 0)

		s.Prime(t0)
		got, _ := s.NextEffectTime()
		if !got.Equal(t0) {
			t.Errorf("発動時刻 = %v, want %v", got, t0)
		}
	})

	t.Run("開始遅延は初回だけ適用される", func(t *testing.T) {
		cfg := testEffectConfig()
		cfg.StartDelay = config.Duration(2 * time.Second)
		s, _, _ := newTestSequencer(cfg)
		t0 := time.Unix(100, 0)

		s.Prime(t0)
		got, _ := s.NextEffectTime()
		if want := t0.Add(2 * time.Second); !got.Equal(want) {
			t.Errorf("初回の発動時刻 = %v, want %v", got, want)
		}

		s.Discard()
		t1 := t0.Add(1 * time.Minute)
		s.Prime(t1)
		got, _ = s.NextEffectTime()
		if want := t1.Add(1 * time.Second); !got.Equal(want) {
			t.Errorf("2回目の発動時刻 = %v, want %v", got, want)
		}
	})
}

// エフェクトの1サイクルを最初から最後まで歩き、状態を切り替える
// ティックが切り替え前の内容を出力することを確かめる
func TestSequencerCycle(t *testing.T) {
	s, tr, an := newTestSequencer(testEffectConfig())
	live := solidFrame(4, 2, 1)
	t0 := time.Unix(100, 0)
	s.Prime(t0)

	out := s.Process(t0.Add(500*time.Millisecond), live)
	if s.State() != EffectPassthrough || out.Pix[0] != 1 {
		t.Fatalf("発動時刻前に状態が動いた: %s", s.State())
	}

	// 発動ティック: ライブ映像を出しつつノイズ表示へ
	trigger := t0.Add(1 * time.Second)
	out = s.Process(trigger, live)
	if out.Pix[0] != 1 {
		t.Errorf("発動ティックの出力がライブ映像でない: %d", out.Pix[0])
	}
	if s.State() != EffectTransition {
		t.Fatalf("状態 = %s, want %s", s.State(), EffectTransition)
	}
	if tr.EffectResets != 1 {
		t.Errorf("発動時にノイズ生成がリセットされていない: %d", tr.EffectResets)
	}

	out = s.Process(trigger.Add(100*time.Millisecond), live)
	if out.Pix[0] != 10 {
		t.Errorf("ノイズ表示中の出力 = %d, want 10", out.Pix[0])
	}

	// 切り替え時間ちょうどのティック: ノイズを出しつつアニメーションへ
	toAnim := trigger.Add(500 * time.Millisecond)
	out = s.Process(toAnim, live)
	if out.Pix[0] != 10 {
		t.Errorf("切り替わりティックの出力 = %d, want 10", out.Pix[0])
	}
	if s.State() != EffectAnimation {
		t.Fatalf("状態 = %s, want %s", s.State(), EffectAnimation)
	}
	if an.Resets != 1 {
		t.Errorf("アニメーション開始時にリセットされていない: %d", an.Resets)
	}

	out = s.Process(toAnim.Add(100*time.Millisecond), live)
	if out.Pix[0] != 20 {
		t.Errorf("アニメーション中の出力 = %d, want 20", out.Pix[0])
	}
	if an.UpdateCount != 1 {
		t.Errorf("Update回数 = %d, want 1", an.UpdateCount)
	}
	if an.LastOpacity != 0.85 {
		t.Errorf("合成の不透明度 = %v, want 0.85", an.LastOpacity)
	}

	// 継続時間ちょうどのティック: 合成を出しつつパススルーへ戻る
	done := toAnim.Add(5 * time.Second)
	out = s.Process(done, live)
	if out.Pix[0] != 20 {
		t.Errorf("完了ティックの出力 = %d, want 20", out.Pix[0])
	}
	if s.State() != EffectPassthrough {
		t.Fatalf("状態 = %s, want %s", s.State(), EffectPassthrough)
	}
	if s.CompletedCycles() != 1 {
		t.Errorf("完了回数 = %d, want 1", s.CompletedCycles())
	}

	// 完了時刻を起点に次の発動が予約される
	next, ok := s.NextEffectTime()
	if !ok {
		t.Fatal("次の発動が予約されていない")
	}
	if want := done.Add(1 * time.Second); !next.Equal(want) {
		t.Errorf("次の発動時刻 = %v, want %v", next, want)
	}
	out = s.Process(next, live)
	if s.State() != EffectTransition || out.Pix[0] != 1 {
		t.Errorf("2周目が発動しない: state=%s out=%d", s.State(), out.Pix[0])
	}
}

func TestSequencerCycleLimit(t *testing.T) {
	cfg := testEffectConfig()
	cfg.Cycles = 1
	cfg.TestMode = true
	s, _, _ := newTestSequencer(cfg)
	live := solidFrame(4, 2, 1)
	t0 := time.Unix(100, 0)

	// 発動 → アニメーション → 完了まで一気に進める
	s.Prime(t0)
	s.Process(t0, live)
	s.Process(t0.Add(500*time.Millisecond), live)
	s.Process(t0.Add(5500*time.Millisecond), live)

	if !s.Finished() {
		t.Fatal("サイクル上限に達していない")
	}
	if s.CompletedCycles() != 1 {
		t.Errorf("完了回数 = %d, want 1", s.CompletedCycles())
	}
	if _, ok := s.NextEffectTime(); ok {
		t.Error("完了後に発動が予約されている")
	}

	// 以後はPrimeしても予約されず、いつまでもパススルーのまま
	s.Prime(t0.Add(1 * time.Minute))
	if _, ok := s.NextEffectTime(); ok {
		t.Error("完了後のPrimeで予約された")
	}
	out := s.Process(t0.Add(1*time.Hour), live)
	if s.State() != EffectPassthrough || out.Pix[0] != 1 {
		t.Errorf("完了後に発動した: %s", s.State())
	}
}

func TestSequencerDiscard(t *testing.T) {
	cfg := testEffectConfig()
	cfg.TestMode = true
	s, _, _ := newTestSequencer(cfg)
	live := solidFrame(4, 2, 1)
	t0 := time.Unix(100, 0)

	// 1サイクル完了させてから、次の予約ごと破棄する
	s.Prime(t0)
	s.Process(t0, live)
	s.Process(t0.Add(500*time.Millisecond), live)
	s.Process(t0.Add(5500*time.Millisecond), live)

	s.Discard()
	if _, ok := s.NextEffectTime(); ok {
		t.Error("破棄後も予約が残っている")
	}
	if s.CompletedCycles() != 1 {
		t.Errorf("破棄で完了回数が失われた: %d", s.CompletedCycles())
	}

	// 進行中のエフェクトも破棄でパススルーへ戻る
	s.Prime(t0.Add(10 * time.Second))
	s.Process(t0.Add(11*time.Second), live)
	if s.State() != EffectTransition {
		t.Fatalf("状態 = %s, want %s", s.State(), EffectTransition)
	}
	s.Discard()
	if s.State() != EffectPassthrough {
		t.Errorf("破棄後の状態 = %s, want %s", s.State(), EffectPassthrough)
	}
}

func TestSequencerInterrupt(t *testing.T) {
	t.Run("進行中のエフェクトを中断して引き直す", func(t *testing.T) {
		cfg := testEffectConfig()
		cfg.TestMode = true
		s, _, _ := newTestSequencer(cfg)
		live := solidFrame(4, 2, 1)
		t0 := time.Unix(100, 0)

		s.Prime(t0)
		s.Process(t0, live)
		s.Process(t0.Add(500*time.Millisecond), live)
		if s.State() != EffectAnimation {
			t.Fatalf("状態 = %s, want %s", s.State(), EffectAnimation)
		}

		tI := t0.Add(2 * time.Second)
		s.Interrupt(tI)
		if s.State() != EffectPassthrough {
			t.Errorf("中断後の状態 = %s, want %s", s.State(), EffectPassthrough)
		}
		if s.CompletedCycles() != 0 {
			t.Errorf("中断したサイクルが完了扱いになった: %d", s.CompletedCycles())
		}
		next, ok := s.NextEffectTime()
		if !ok {
			t.Fatal("中断後に引き直されていない")
		}
		if want := tI.Add(1 * time.Second); !next.Equal(want) {
			t.Errorf("引き直した発動時刻 = %v, want %v", next, want)
		}
	})

	t.Run("パススルー中は予約を保つ", func(t *testing.T) {
		s, _, _ := newTestSequencer(testEffectConfig())
		t0 := time.Unix(100, 0)

		s.Prime(t0)
		before, _ := s.NextEffectTime()
		s.Interrupt(t0.Add(100 * time.Millisecond))
		after, ok := s.NextEffectTime()
		if !ok || !after.Equal(before) {
			t.Errorf("中断で予約が動いた: %v -> %v", before, after)
		}
	})
}

func TestSequencerDrawInterval(t *testing.T) {
	cfg := testEffectConfig()
	cfg.MinInterval = config.Duration(1 * time.Second)
	cfg.MaxInterval = config.Duration(3 * time.Second)
	s, _, _ := newTestSequencer(cfg)

	for i := 0; i < 200; i++ {
		got := s.drawInterval()
		if got < 1*time.Second || got > 3*time.Second {
			t.Fatalf("引いた間隔が範囲外: %s", got)
		}
	}
}
