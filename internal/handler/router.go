package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// アカウントライフサイクル
	AuthService AuthServiceInterface

	// GET /auth/me のIDトークン検証
	Verifier middleware.TokenVerifier

	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nil可

	// Prometheusスクレイプ用。nilの場合/metricsは公開しない。
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → RequestID → Logging → Metrics
//
// レート制限は/auth以下にのみ適用する。資格情報を受け取るエンドポイント
// （register、login、forgot-password）には厳しい制限を重ねる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	authHandler := NewAuthHandler(deps.AuthService)

	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 資格情報を受け取るエンドポイントには厳しいレート制限を重ねる
		credential := deps.RateLimiter.CredentialMiddleware()
		r.With(credential).Post("/register", authHandler.Register)
		r.With(credential).Post("/login", authHandler.Login)
		r.With(credential).Post("/forgot-password", authHandler.ForgotPassword)

		r.Post("/confirm", authHandler.Confirm)
		r.Post("/resend-confirmation", authHandler.ResendConfirmation)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Post("/confirm-forgot-password", authHandler.ConfirmForgotPassword)
		r.Post("/change-password", authHandler.ChangePassword)
		r.Delete("/delete-account", authHandler.DeleteAccount)

		// /auth/me のみAuthorizationヘッダーのIDトークンを検証する
		r.With(middleware.NewBearerAuthMiddleware(deps.Verifier)).Get("/me", authHandler.Me)
	})

	r.Get("/health", handleHealth)

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}

// handleHealth はロードバランサーのヘルスチェックに応答する。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
