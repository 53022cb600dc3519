package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// subjectHolder はリクエスト処理中に判明したsubjectを外側のミドルウェアへ
// 伝えるための可変コンテナ。コンテキストは派生方向にしか値を運べないため、
// statusRecorderと同様にポインタ経由で内側から書き戻す。
type subjectHolder struct {
	sub string
}

// subjectContextKey はリクエストコンテキストにsubjectHolderを格納するためのキー。
var subjectContextKey = contextKey("log_subject")

// subjectHolderFromContext はコンテキストからsubjectHolderを取得する。
func subjectHolderFromContext(ctx context.Context) *subjectHolder {
	holder, _ := ctx.Value(subjectContextKey).(*subjectHolder)
	return holder
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、sub（認証済みの場合）を含む。
// 認証情報（パスワード・コード・トークン）は決してログに含めない。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			holder := &subjectHolder{}
			ctx := context.WithValue(r.Context(), subjectContextKey, holder)

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			if requestID := RequestIDFromContext(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}

			// 内側のBearer認証ミドルウェアが書き戻したsubjectを追加する。
			// 派生前のコンテキストにクレームが入っている場合も拾う
			sub := holder.sub
			if sub == "" {
				if claims, err := ClaimsFromContext(r.Context()); err == nil {
					sub = claims.Subject
				}
			}
			if sub != "" {
				attrs = append(attrs, slog.String("sub", sub))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			// slog.Attr をany スライスに変換
			args := make([]any, len(attrs))
			for i, attr := range attrs {
				args[i] = attr
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
