// Package filter は、カメラ・エフェクト・仮想デバイスをつなぐ中核ループを管理します。
//
// このパッケージは、物理カメラのライフサイクル、エフェクトの
// 時限シーケンス、仮想デバイスへのフレーム供給を単一の
// ティックループとして駆動します。
//
// 責務:
//   - コンシューマ有無に応じたカメラの取得と解放
//   - カメラ状態機械（待機・接続中・稼働・再試行）の遷移
//   - エフェクト状態機械（パススルー・ノイズ・アニメーション）の進行
//   - 毎ティックのフレーム合成と仮想デバイスへの書き込み
//   - カメラ喪失時のアイドルパターン生成
//
// 仕様:
//   - ループは単一ゴルーチンで回し、状態にロックを持たない
//   - コンシューマ数はティック冒頭で一度だけ読む
//   - カメラ障害は致命でなくポーリング再試行へ降格する
//   - エフェクト発動間隔は設定範囲内の一様乱数で決める
package filter
