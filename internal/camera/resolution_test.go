package camera

import (
	"testing"

	"github.com/blackjack/webcam"
)

// TestSelectResolution は選択方針ごとの解像度選択をテストする
func TestSelectResolution(t *testing.T) {
	testCases := []struct {
		name     string
		list     []Resolution
		pref     Preference
		want     Resolution
		wantFind bool
	}{
		{
			name:     "lowは最小を選ぶ",
			list:     []Resolution{{1920, 1080}, {640, 480}, {1280, 720}},
			pref:     PreferenceLow,
			want:     Resolution{640, 480},
			wantFind: true,
		},
		{
			name:     "highは最大を選ぶ",
			list:     []Resolution{{640, 480}, {1920, 1080}, {1280, 720}},
			pref:     PreferenceHigh,
			want:     Resolution{1920, 1080},
			wantFind: true,
		},
		{
			name:     "mediumは要素1つならそれを選ぶ",
			list:     []Resolution{{640, 480}},
			pref:     PreferenceMedium,
			want:     Resolution{640, 480},
			wantFind: true,
		},
		{
			name:     "mediumは要素2つなら大きい方を選ぶ",
			list:     []Resolution{{1280, 720}, {640, 480}},
			pref:     PreferenceMedium,
			want:     Resolution{1280, 720},
			wantFind: true,
		},
		{
			name:     "mediumは要素3つなら中央を選ぶ",
			list:     []Resolution{{1920, 1080}, {640, 480}, {1280, 720}},
			pref:     PreferenceMedium,
			want:     Resolution{1280, 720},
			wantFind: true,
		},
		{
			name: "mediumは要素5つなら昇順3番目を選ぶ",
			list: []Resolution{
				{3840, 2160}, {320, 240}, {1920, 1080}, {640, 480}, {1280, 720},
			},
			pref:     PreferenceMedium,
			want:     Resolution{1280, 720},
			wantFind: true,
		},
		{
			name: "mediumは要素4つなら中央の小さい方を選ぶ",
			list: []Resolution{
				{320, 240}, {640, 480}, {1280, 720}, {1920, 1080},
			},
			pref:     PreferenceMedium,
			want:     Resolution{640, 480},
			wantFind: true,
		},
		{
			name:     "空のリストでは見つからない",
			list:     nil,
			pref:     PreferenceMedium,
			wantFind: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := SelectResolution(tc.list, tc.pref)
			if found != tc.wantFind {
				t.Fatalf("found = %v, want %v", found, tc.wantFind)
			}
			if found && got != tc.want {
				t.Errorf("選択結果が一致しません: got %s, want %s", got, tc.want)
			}
		})
	}
}

// TestSelectResolutionDoesNotMutateInput は入力リストの順序が保存されることをテストする
func TestSelectResolutionDoesNotMutateInput(t *testing.T) {
	list := []Resolution{{1920, 1080}, {640, 480}, {1280, 720}}
	_, _ = SelectResolution(list, PreferenceLow)

	if list[0] != (Resolution{1920, 1080}) {
		t.Error("入力リストが並べ替えられています")
	}
}

// TestSupportedResolutions はフレームサイズ記述子の変換をテストする
func TestSupportedResolutions(t *testing.T) {
	testCases := []struct {
		name  string
		sizes []webcam.FrameSize
		want  []Resolution
	}{
		{
			name: "離散サイズは昇順に整列される",
			sizes: []webcam.FrameSize{
				{MinWidth: 1920, MaxWidth: 1920, MinHeight: 1080, MaxHeight: 1080},
				{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480},
			},
			want: []Resolution{{640, 480}, {1920, 1080}},
		},
		{
			name: "重複する離散サイズは1つにまとめる",
			sizes: []webcam.FrameSize{
				{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480},
				{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480},
			},
			want: []Resolution{{640, 480}},
		},
		{
			name: "連続範囲には代表解像度を当てはめる",
			sizes: []webcam.FrameSize{
				{MinWidth: 640, MaxWidth: 1280, MinHeight: 360, MaxHeight: 720},
			},
			want: []Resolution{{640, 360}, {640, 480}, {800, 600}, {1280, 720}},
		},
		{
			name: "ステップ制約に合わない解像度は除外される",
			sizes: []webcam.FrameSize{
				{
					MinWidth: 320, MaxWidth: 1920, StepWidth: 320,
					MinHeight: 240, MaxHeight: 1080, StepHeight: 240,
				},
			},
			// 幅320刻み・高さ240刻みに合致する代表解像度のみ
			want: []Resolution{{320, 240}, {640, 480}, {1280, 720}, {1280, 960}},
		},
		{
			name:  "空の記述子リストは空を返す",
			sizes: nil,
			want:  nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := supportedResolutions(tc.sizes)
			if len(got) != len(tc.want) {
				t.Fatalf("件数が一致しません: got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("[%d] が一致しません: got %s, want %s", i, got[i], tc.want[i])
				}
			}
		})
	}
}

// TestParsePreference は解像度方針の文字列解釈をテストする
func TestParsePreference(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		want      Preference
		expectErr bool
	}{
		{name: "low", input: "low", want: PreferenceLow},
		{name: "medium", input: "medium", want: PreferenceMedium},
		{name: "high", input: "high", want: PreferenceHigh},
		{name: "大文字も受け付ける", input: "HIGH", want: PreferenceHigh},
		{name: "前後の空白を無視する", input: " medium ", want: PreferenceMedium},
		{name: "未知の値はエラー", input: "ultra", expectErr: true},
		{name: "空文字列はエラー", input: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePreference(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Error("エラーが期待されましたが発生しませんでした")
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
