// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// Kind は操作結果のエラー分類を表す。
// プロバイダーのエラー語彙から独立した、API契約として安定した分類。
type Kind string

// 定義済みエラー分類
const (
	// KindConflict はアカウントが既に存在することを示す。
	KindConflict Kind = "conflict"
	// KindInvalidInput はパスワードポリシー違反や不正なパラメータを示す。
	KindInvalidInput Kind = "invalid_input"
	// KindUnauthenticated は資格情報またはトークンが無効であることを示す。
	// 列挙攻撃対策のため「存在しない」と「誤っている」を区別しない。
	KindUnauthenticated Kind = "unauthenticated"
	// KindForbidden は現在の状態では許可されない操作を示す（未確認アカウントのログイン等）。
	KindForbidden Kind = "forbidden"
	// KindNotFound はアカウント不存在の開示が安全な操作でのみ使用する。
	KindNotFound Kind = "not_found"
	// KindRateLimited はプロバイダーまたはゲートウェイのレート制限を示す。
	KindRateLimited Kind = "rate_limited"
	// KindUnavailable は未分類のプロバイダーエラー・通信障害の汎用分類。
	KindUnavailable Kind = "unavailable"
)

// APIError は公開APIのエラー結果を表す。
// Messageは短く安定した英語文字列で、パスワードポリシー違反の2箇所を除き
// プロバイダー由来の文言を含まない。
type APIError struct {
	Kind    Kind
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// HTTPStatus は分類に対応するHTTPステータスコードを返す。
// 分類→ステータスの対応は固定で、これ以外のステータス語彙は存在しない。
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidInputError は入力不正エラーを生成する。
func NewInvalidInputError(message string) *APIError {
	return &APIError{Kind: KindInvalidInput, Message: message}
}

// NewUnauthenticatedError は認証エラーを生成する。
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{Kind: KindUnauthenticated, Message: message}
}

// NewUnavailableError は汎用障害エラーを生成する。
func NewUnavailableError(message string) *APIError {
	return &APIError{Kind: KindUnavailable, Message: message}
}
