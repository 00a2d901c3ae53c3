// Package camera 物理カメラの取得と解像度交渉を担う
//
// # 責務
// - V4L2キャプチャデバイスのオープン・クローズ
// - /dev/videoN の走査による利用可能カメラの自動検出
// - 対応解像度の列挙と選択方針（low/medium/high）による選択
// - YUYV/MJPEGフレームのRGB24への変換
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 物理カメラを開いてフレームを順次取得したい
// - デバイスが報告する解像度一覧から方針に沿って1つ選びたい
// - カメラの有無を起動時に自動判定したい
//
// # 仕様
// - Capture: 常に単一セッションを保持し、再オープン時は先に解放する
// - 解像度・フォーマットはドライバーが受理した値を正とする
// - フレームレートは30fpsを要求し、ドライバーの報告値を正とする。範囲外の値はClampFPSで既定値へ丸める
// - 読み取りタイムアウトは空フレーム、デバイス喪失はエラーとして区別する
//
// # 前提要件
//   - v4l2loopbackなどの出力専用デバイスは検出対象から除外すること
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
