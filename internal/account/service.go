package account

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/provider"
)

// Recorder はメトリクス記録のインターフェース（account側で必要な部分集合）。
type Recorder interface {
	RecordOperation(operation string, result string)
	RecordProviderError(operation string, code string)
	RecordProviderLatency(duration time.Duration)
}

// Service はアカウントライフサイクルに関するビジネスロジックを提供する。
// ローカルに状態を持たず、すべての識別情報はプロバイダーが保持する。
type Service struct {
	client  provider.Client
	metrics Recorder // nil可
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(client provider.Client, metrics Recorder) *Service {
	return &Service{
		client:  client,
		metrics: metrics,
	}
}

// Register は新規アカウントを登録し、プロバイダー発行のsubject識別子を返す。
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if password == "" {
		return "", model.NewInvalidInputError("Password is required")
	}

	var sub string
	err := s.call(ctx, OpRegister, func(ctx context.Context) error {
		var err error
		sub, err = s.client.Register(ctx, email, password)
		return err
	})
	if err != nil {
		return "", err
	}

	slog.Info("user registered", slog.String("sub", sub))
	return sub, nil
}

// Confirm は確認コードでメールアドレスを検証し、アカウントを確認済み状態に遷移させる。
func (s *Service) Confirm(ctx context.Context, email, code string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if code == "" {
		return model.NewInvalidInputError("Verification code is required")
	}

	return s.call(ctx, OpConfirm, func(ctx context.Context) error {
		return s.client.ConfirmRegistration(ctx, email, code)
	})
}

// ResendConfirmation は確認コードを再送する。
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	return s.call(ctx, OpResendConfirmation, func(ctx context.Context) error {
		return s.client.ResendConfirmationCode(ctx, email)
	})
}

// Login はメールアドレスとパスワードで認証し、トークン一式を返す。
// 「アカウントが存在しない」と「パスワードが誤っている」は同一の結果になる。
func (s *Service) Login(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, model.NewInvalidInputError("Password is required")
	}

	var bundle *model.CredentialBundle
	err := s.call(ctx, OpLogin, func(ctx context.Context) error {
		var err error
		bundle, err = s.client.Authenticate(ctx, email, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// Refresh はリフレッシュトークンでアクセストークンを再発行する。
// プロバイダーのリフレッシュフローはメールアドレスではなくsubject識別子を
// キーとするため、subjectIDを要求する。新しいリフレッシュトークンは発行されない。
func (s *Service) Refresh(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error) {
	if refreshToken == "" {
		return nil, model.NewInvalidInputError("Refresh token is required")
	}
	if subjectID == "" {
		return nil, model.NewInvalidInputError("Username is required")
	}

	var creds *model.RefreshedCredentials
	err := s.call(ctx, OpRefresh, func(ctx context.Context) error {
		var err error
		creds, err = s.client.Refresh(ctx, refreshToken, subjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// Logout は全セッションのトークンを無効化する。
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if err := validateAccessToken(accessToken); err != nil {
		return err
	}

	return s.call(ctx, OpLogout, func(ctx context.Context) error {
		return s.client.GlobalSignOut(ctx, accessToken)
	})
}

// ForgotPassword はパスワードリセットコードの送信を開始する。
// アカウントが存在しない場合も成功として扱う（列挙防御）。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	return s.call(ctx, OpForgotPassword, func(ctx context.Context) error {
		return s.client.InitiatePasswordReset(ctx, email)
	})
}

// ConfirmForgotPassword はリセットコードで新しいパスワードを設定する。
func (s *Service) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if code == "" {
		return model.NewInvalidInputError("Verification code is required")
	}
	if newPassword == "" {
		return model.NewInvalidInputError("New password is required")
	}

	return s.call(ctx, OpConfirmForgotPassword, func(ctx context.Context) error {
		return s.client.CompletePasswordReset(ctx, email, code, newPassword)
	})
}

// ChangePassword は認証済みユーザーのパスワードを変更する。
// 「トークンが無効」と「現在のパスワードが誤っている」は同一の結果になる。
func (s *Service) ChangePassword(ctx context.Context, accessToken, previousPassword, newPassword string) error {
	if err := validateAccessToken(accessToken); err != nil {
		return err
	}
	if previousPassword == "" {
		return model.NewInvalidInputError("Previous password is required")
	}
	if newPassword == "" {
		return model.NewInvalidInputError("New password is required")
	}

	return s.call(ctx, OpChangePassword, func(ctx context.Context) error {
		return s.client.ChangePassword(ctx, accessToken, previousPassword, newPassword)
	})
}

// DeleteAccount はアカウントを完全に削除する。
func (s *Service) DeleteAccount(ctx context.Context, accessToken string) error {
	if err := validateAccessToken(accessToken); err != nil {
		return err
	}

	return s.call(ctx, OpDeleteAccount, func(ctx context.Context) error {
		return s.client.DeleteAccount(ctx, accessToken)
	})
}

// CurrentUser は検証済みトークンのクレームから現在ユーザーの情報を構成する。
// プロバイダーへの呼び出しは行わない。
func (s *Service) CurrentUser(claims *auth.Claims) (*model.UserProfile, error) {
	if claims == nil || claims.Subject == "" {
		return nil, model.NewUnauthenticatedError("Authentication required")
	}

	s.recordOperation(OpCurrentUser, "success")
	return &model.UserProfile{
		Sub:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// call はプロバイダー呼び出し1回を実行し、失敗時は対応表で公開結果に変換する。
// リトライは行わず、一時的な障害も汎用障害として呼び出し元に返す。
func (s *Service) call(ctx context.Context, op Operation, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	s.recordProviderLatency(time.Since(start))

	if err == nil {
		s.recordOperation(op, "success")
		return nil
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		s.recordProviderError(op, perr.Code)

		mapped := MapProviderError(op, perr)
		if mapped == nil {
			// プロバイダーの失敗を成功として提示する（列挙防御）
			s.recordOperation(op, "success")
			return nil
		}

		s.recordOperation(op, string(mapped.Kind))
		slog.Warn("provider rejected operation",
			slog.String("operation", string(op)),
			slog.String("provider_code", perr.Code),
			slog.String("kind", string(mapped.Kind)),
		)
		return mapped
	}

	// トランスポート障害・プロバイダーの不正レスポンスは汎用障害に落とす
	s.recordOperation(op, string(model.KindUnavailable))
	slog.Error("provider call failed",
		slog.String("operation", string(op)),
		slog.String("error", err.Error()),
	)
	return model.NewUnavailableError(fallbackMessage(op))
}

func (s *Service) recordOperation(op Operation, result string) {
	if s.metrics != nil {
		s.metrics.RecordOperation(string(op), result)
	}
}

func (s *Service) recordProviderError(op Operation, code string) {
	if s.metrics != nil {
		s.metrics.RecordProviderError(string(op), code)
	}
}

func (s *Service) recordProviderLatency(d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordProviderLatency(d)
	}
}

// validateEmail はメールアドレスの構文を検証する。
// 妥当性（実在するか）の判断はプロバイダーに委ねる。
func validateEmail(email string) *model.APIError {
	if email == "" {
		return model.NewInvalidInputError("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewInvalidInputError("A valid email address is required")
	}
	return nil
}

// validateAccessToken はアクセストークンの構文（JWT形式）のみを検証する。
// トークンが有効かどうかの判断はプロバイダーに委ねる。
func validateAccessToken(token string) *model.APIError {
	if token == "" {
		return model.NewInvalidInputError("Access token is required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return model.NewInvalidInputError("A well-formed access token is required")
	}
	return nil
}
