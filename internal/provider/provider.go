// Package provider はリモートIDプロバイダーへの狭いインターフェースを定義する。
// 資格情報の保存・ハッシュ化・コード生成・トークン署名はすべてプロバイダーの責務であり、
// 本システムはこのインターフェースを通じてのみプロバイダーに到達する。
package provider

import (
	"context"
	"fmt"

	"github.com/hitoshi/authgate/internal/model"
)

// Error はプロバイダーが返したエラーコードとメッセージをそのまま保持する。
// クライアント実装は解釈を加えずに中継し、解釈はaccountパッケージの
// 対応表でのみ行う。
type Error struct {
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// プロバイダーが返すエラーコード
const (
	CodeUsernameExists   = "UsernameExistsException"
	CodeInvalidPassword  = "InvalidPasswordException"
	CodeInvalidParameter = "InvalidParameterException"
	CodeCodeMismatch     = "CodeMismatchException"
	CodeExpiredCode      = "ExpiredCodeException"
	CodeUserNotFound     = "UserNotFoundException"
	CodeNotAuthorized    = "NotAuthorizedException"
	CodeUserNotConfirmed = "UserNotConfirmedException"
	CodeTooManyRequests  = "TooManyRequestsException"
	CodeLimitExceeded    = "LimitExceededException"
)

// Client はアカウントライフサイクルに必要な10のプロバイダー操作を定義する。
// 各操作はプロバイダーへのネットワーク呼び出し1回に対応し、リトライは行わない。
// 失敗時は*Error（プロバイダーのエラーコード）またはトランスポートエラーを返す。
type Client interface {
	// Register は新規アカウントを作成し、プロバイダー発行のsubject識別子を返す。
	Register(ctx context.Context, email, password string) (string, error)
	// ConfirmRegistration は確認コードでメールアドレスを検証する。
	ConfirmRegistration(ctx context.Context, email, code string) error
	// ResendConfirmationCode は確認コードを再送する。
	ResendConfirmationCode(ctx context.Context, email string) error
	// Authenticate はメールアドレスとパスワードで認証し、トークン一式を返す。
	Authenticate(ctx context.Context, email, password string) (*model.CredentialBundle, error)
	// Refresh はリフレッシュトークンでアクセストークンを再発行する。
	// プロバイダーのリフレッシュフローはメールアドレスではなく
	// 安定したsubject識別子をキーとする。
	Refresh(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error)
	// GlobalSignOut は全セッションのトークンを無効化する。
	GlobalSignOut(ctx context.Context, accessToken string) error
	// InitiatePasswordReset はパスワードリセットコードを送信する。
	InitiatePasswordReset(ctx context.Context, email string) error
	// CompletePasswordReset はリセットコードで新しいパスワードを設定する。
	CompletePasswordReset(ctx context.Context, email, code, newPassword string) error
	// ChangePassword は認証済みユーザーのパスワードを変更する。
	ChangePassword(ctx context.Context, accessToken, previousPassword, newPassword string) error
	// DeleteAccount はアカウントを完全に削除する。
	DeleteAccount(ctx context.Context, accessToken string) error
}
