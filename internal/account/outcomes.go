// Package account はアカウントライフサイクルのオーケストレーションを提供する。
// 遷移の前提条件検証、プロバイダー呼び出し、エラーコードの公開API結果への
// 変換を担う。解釈はここでのみ行い、プロバイダーのクライアントは行わない。
package account

import (
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/provider"
)

// Operation はアカウントライフサイクルの操作を表す。
// 同じプロバイダーエラーコードでも操作によって公開結果が異なるため、
// 対応表は操作ごとに持つ。
type Operation string

// 定義済み操作
const (
	OpRegister              Operation = "register"
	OpConfirm               Operation = "confirm"
	OpResendConfirmation    Operation = "resend_confirmation"
	OpLogin                 Operation = "login"
	OpRefresh               Operation = "refresh"
	OpLogout                Operation = "logout"
	OpForgotPassword        Operation = "forgot_password"
	OpConfirmForgotPassword Operation = "confirm_forgot_password"
	OpChangePassword        Operation = "change_password"
	OpDeleteAccount         Operation = "delete_account"
	OpCurrentUser           Operation = "current_user"
)

// outcome は特定のプロバイダーエラーコードに対する公開結果を表す。
type outcome struct {
	kind    model.Kind
	message string
	// passProviderMessage がtrueの場合、プロバイダーのメッセージをそのまま返す。
	// パスワードポリシー違反のフィードバックのみ、ユーザーが対処可能な
	// 安全な文言とみなす。プロバイダーのメッセージが空の場合はmessageを使う。
	passProviderMessage bool
}

// operationPolicy は1操作分のエラーコード→公開結果の対応表。
type operationPolicy struct {
	// enumerationSafe がtrueの場合、UserNotFoundをNotAuthorizedと同一の結果に
	// 畳み込み、エラー文言からアカウントの存在を推測できないようにする。
	// 新しい操作はオプトアウトしない限りこの安全側の挙動に従うこと。
	enumerationSafe bool
	// successOnUserNotFound がtrueの場合、UserNotFoundを成功として提示する。
	// パスワードリセット開始における列挙防御で、プロバイダーの失敗を
	// 成功として返す唯一の例外。
	successOnUserNotFound bool
	codes                 map[string]outcome
	// fallbackMessage は未分類コード・通信障害に対する操作固有の固定文言。
	fallbackMessage string
}

// rateLimitMessage は全操作共通のレート制限メッセージ。
const rateLimitMessage = "Too many requests. Please try again later."

// limitExceededMessage はプロバイダーの試行回数制限に対するメッセージ。
const limitExceededMessage = "Attempt limit exceeded. Please try again later."

// policies は操作ごとの対応表。すべての操作が定義されていなければならない。
var policies = map[Operation]operationPolicy{
	OpRegister: {
		codes: map[string]outcome{
			provider.CodeUsernameExists:  {kind: model.KindConflict, message: "An account with this email already exists"},
			provider.CodeInvalidPassword: {kind: model.KindInvalidInput, message: "Password does not meet the security requirements", passProviderMessage: true},
		},
		fallbackMessage: "Registration failed",
	},
	OpConfirm: {
		codes: map[string]outcome{
			provider.CodeCodeMismatch:  {kind: model.KindInvalidInput, message: "Invalid verification code"},
			provider.CodeExpiredCode:   {kind: model.KindInvalidInput, message: "Verification code has expired. Please request a new one."},
			provider.CodeUserNotFound:  {kind: model.KindNotFound, message: "User not found"},
			provider.CodeNotAuthorized: {kind: model.KindInvalidInput, message: "User is already confirmed"},
		},
		fallbackMessage: "Confirmation failed",
	},
	OpResendConfirmation: {
		codes: map[string]outcome{
			provider.CodeUserNotFound:     {kind: model.KindNotFound, message: "User not found"},
			provider.CodeInvalidParameter: {kind: model.KindInvalidInput, message: "User is already confirmed"},
			provider.CodeLimitExceeded:    {kind: model.KindRateLimited, message: limitExceededMessage},
		},
		fallbackMessage: "Failed to resend verification code",
	},
	OpLogin: {
		enumerationSafe: true,
		codes: map[string]outcome{
			provider.CodeNotAuthorized:    {kind: model.KindUnauthenticated, message: "Invalid email or password"},
			provider.CodeUserNotConfirmed: {kind: model.KindForbidden, message: "Email not verified. Please confirm your email first."},
		},
		fallbackMessage: "Login failed",
	},
	OpRefresh: {
		codes: map[string]outcome{
			provider.CodeNotAuthorized: {kind: model.KindUnauthenticated, message: "Invalid or expired refresh token"},
			provider.CodeUserNotFound:  {kind: model.KindNotFound, message: "User not found"},
		},
		fallbackMessage: "Token refresh failed",
	},
	OpLogout: {
		codes: map[string]outcome{
			provider.CodeNotAuthorized: {kind: model.KindUnauthenticated, message: "Invalid or expired access token"},
		},
		fallbackMessage: "Logout failed",
	},
	OpForgotPassword: {
		successOnUserNotFound: true,
		codes: map[string]outcome{
			provider.CodeInvalidParameter: {kind: model.KindInvalidInput, message: "User account is not in a valid state for password reset"},
			provider.CodeLimitExceeded:    {kind: model.KindRateLimited, message: limitExceededMessage},
		},
		fallbackMessage: "Failed to initiate password reset",
	},
	OpConfirmForgotPassword: {
		codes: map[string]outcome{
			provider.CodeCodeMismatch:    {kind: model.KindInvalidInput, message: "Invalid verification code"},
			provider.CodeExpiredCode:     {kind: model.KindInvalidInput, message: "Verification code has expired. Please request a new one."},
			provider.CodeUserNotFound:    {kind: model.KindNotFound, message: "User not found"},
			provider.CodeInvalidPassword: {kind: model.KindInvalidInput, message: "Password does not meet the security requirements", passProviderMessage: true},
		},
		fallbackMessage: "Password reset failed",
	},
	OpChangePassword: {
		enumerationSafe: true,
		codes: map[string]outcome{
			provider.CodeNotAuthorized:   {kind: model.KindUnauthenticated, message: "Invalid access token or incorrect current password"},
			provider.CodeInvalidPassword: {kind: model.KindInvalidInput, message: "Password does not meet the security requirements", passProviderMessage: true},
			provider.CodeLimitExceeded:   {kind: model.KindRateLimited, message: limitExceededMessage},
		},
		fallbackMessage: "Password change failed",
	},
	OpDeleteAccount: {
		codes: map[string]outcome{
			provider.CodeNotAuthorized: {kind: model.KindUnauthenticated, message: "Invalid or expired access token"},
			provider.CodeUserNotFound:  {kind: model.KindNotFound, message: "User not found"},
		},
		fallbackMessage: "Account deletion failed",
	},
}

// MapProviderError は(操作, プロバイダーエラー)を公開APIの結果に変換する。
// 全域関数であり、未分類のコードは操作ごとの汎用障害に落ちる。
// 戻り値がnilの場合はプロバイダーの失敗を成功として提示する（列挙防御）。
func MapProviderError(op Operation, perr *provider.Error) *model.APIError {
	p, ok := policies[op]
	if !ok {
		return model.NewUnavailableError("Request failed")
	}

	// レート制限コードは全操作で一律に429相当として扱う
	if perr.Code == provider.CodeTooManyRequests {
		return &model.APIError{Kind: model.KindRateLimited, Message: rateLimitMessage}
	}

	code := perr.Code
	if p.successOnUserNotFound && code == provider.CodeUserNotFound {
		return nil
	}
	if p.enumerationSafe && code == provider.CodeUserNotFound {
		code = provider.CodeNotAuthorized
	}

	out, ok := p.codes[code]
	if !ok {
		return model.NewUnavailableError(p.fallbackMessage)
	}

	message := out.message
	if out.passProviderMessage && perr.Message != "" {
		message = perr.Message
	}
	return &model.APIError{Kind: out.kind, Message: message}
}

// fallbackMessage は操作の汎用障害メッセージを返す。
// トランスポート障害やプロバイダーの不正レスポンスにも使用する。
func fallbackMessage(op Operation) string {
	if p, ok := policies[op]; ok {
		return p.fallbackMessage
	}
	return "Request failed"
}
