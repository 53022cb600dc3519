// Package logger はゲートウェイ共通のJSON構造化ログ設定を提供する。
// ログ収集基盤が1行1JSONを前提とするため、テキスト形式は提供しない。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログを書き出す*slog.Loggerを生成して返す。
// レベルはInfo固定。認証情報（パスワード・確認コード・トークン）を
// ログ属性に渡さないのは呼び出し側の責務。
func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetupDefault はSetupで生成したロガーをプロセス全体のデフォルトに設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
