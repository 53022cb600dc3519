// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/authgate/internal/auth"
)

// bearerPrefix はAuthorizationヘッダーのスキーム部分。
const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenVerifier はトークン検証のインターフェース。
// auth.OIDCVerifierの部分集合として定義する。
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*auth.Claims, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// クレームをリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーが無い・形式が不正・検証に失敗した場合はすべて401で拒否する。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				writeUnauthorized(w)
				return
			}

			rawToken := strings.TrimPrefix(header, bearerPrefix)
			if rawToken == "" {
				writeUnauthorized(w)
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				slog.Warn("bearer token rejected", slog.String("error", err.Error()))
				writeUnauthorized(w)
				return
			}

			// 外側のロギングミドルウェアにsubjectを書き戻す
			if holder := subjectHolderFromContext(r.Context()); holder != nil {
				holder.sub = claims.Subject
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
// Bearer認証ミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// writeUnauthorized は401レスポンスを統一フォーマットで書き込む。
// 拒否理由は漏らさない。
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    "unauthenticated",
		"message": "Invalid or missing access token",
	})
}
