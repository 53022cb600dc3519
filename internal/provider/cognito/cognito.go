// Package cognito はAWS Cognitoユーザープールに対するprovider.Clientの実装を提供する。
// プロバイダーのエラーはコードとメッセージをそのままprovider.Errorに変換して返し、
// 解釈は呼び出し元に委ねる。
package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/provider"
)

// defaultTimeout はプロバイダー呼び出し1回あたりのデフォルトタイムアウト。
const defaultTimeout = 10 * time.Second

// cognitoAPI はSDKクライアントのうち本パッケージが使用する操作の部分集合。
// テスト用にフェイク実装と差し替え可能にする。
type cognitoAPI interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	GlobalSignOut(ctx context.Context, in *cip.GlobalSignOutInput, optFns ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	ChangePassword(ctx context.Context, in *cip.ChangePasswordInput, optFns ...func(*cip.Options)) (*cip.ChangePasswordOutput, error)
	DeleteUser(ctx context.Context, in *cip.DeleteUserInput, optFns ...func(*cip.Options)) (*cip.DeleteUserOutput, error)
}

// Config はCognitoクライアントの設定。
type Config struct {
	ClientID string
	// ClientSecret が設定されている場合、各呼び出しにSECRET_HASHを付与する。
	ClientSecret string
	// Timeout は呼び出し1回あたりのタイムアウト。0の場合はデフォルト値を使用する。
	Timeout time.Duration
}

// Client はCognitoユーザープールAPIのクライアント。
type Client struct {
	api    cognitoAPI
	config Config
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(api cognitoAPI, config Config, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		api:    api,
		config: config,
		logger: logger,
	}
}

// Register は新規アカウントを作成し、subject識別子を返す。
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:   aws.String(c.config.ClientID),
		Username:   aws.String(email),
		Password:   aws.String(password),
		SecretHash: c.secretHash(email),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	})
	if err != nil {
		return "", c.translateError("sign_up", err)
	}

	sub := aws.ToString(out.UserSub)
	if sub == "" {
		return "", errors.New("provider returned no subject identifier")
	}
	return sub, nil
}

// ConfirmRegistration は確認コードでメールアドレスを検証する。
func (c *Client) ConfirmRegistration(ctx context.Context, email, code string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.config.ClientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		SecretHash:       c.secretHash(email),
	})
	if err != nil {
		return c.translateError("confirm_sign_up", err)
	}
	return nil
}

// ResendConfirmationCode は確認コードを再送する。
func (c *Client) ResendConfirmationCode(ctx context.Context, email string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(c.config.ClientID),
		Username:   aws.String(email),
		SecretHash: c.secretHash(email),
	})
	if err != nil {
		return c.translateError("resend_confirmation_code", err)
	}
	return nil
}

// Authenticate はメールアドレスとパスワードで認証し、トークン一式を返す。
func (c *Client) Authenticate(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if hash := c.secretHash(email); hash != nil {
		params["SECRET_HASH"] = *hash
	}

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(c.config.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, c.translateError("initiate_auth", err)
	}

	ar := out.AuthenticationResult
	if ar == nil {
		// チャレンジ応答が必要なプール設定等。本システムでは扱わない。
		return nil, errors.New("provider returned no authentication result")
	}

	return &model.CredentialBundle{
		AccessToken:  aws.ToString(ar.AccessToken),
		IDToken:      aws.ToString(ar.IdToken),
		RefreshToken: aws.ToString(ar.RefreshToken),
		ExpiresIn:    ar.ExpiresIn,
	}, nil
}

// Refresh はリフレッシュトークンでアクセストークンを再発行する。
// SECRET_HASHはメールアドレスではなくsubject識別子で計算する。
func (c *Client) Refresh(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	params := map[string]string{
		"REFRESH_TOKEN": refreshToken,
	}
	if hash := c.secretHash(subjectID); hash != nil {
		params["SECRET_HASH"] = *hash
	}

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(c.config.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, c.translateError("refresh_token_auth", err)
	}

	ar := out.AuthenticationResult
	if ar == nil {
		return nil, errors.New("provider returned no authentication result")
	}

	return &model.RefreshedCredentials{
		AccessToken: aws.ToString(ar.AccessToken),
		IDToken:     aws.ToString(ar.IdToken),
		ExpiresIn:   ar.ExpiresIn,
	}, nil
}

// GlobalSignOut は全セッションのトークンを無効化する。
func (c *Client) GlobalSignOut(ctx context.Context, accessToken string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return c.translateError("global_sign_out", err)
	}
	return nil
}

// InitiatePasswordReset はパスワードリセットコードを送信する。
func (c *Client) InitiatePasswordReset(ctx context.Context, email string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(c.config.ClientID),
		Username:   aws.String(email),
		SecretHash: c.secretHash(email),
	})
	if err != nil {
		return c.translateError("forgot_password", err)
	}
	return nil
}

// CompletePasswordReset はリセットコードで新しいパスワードを設定する。
func (c *Client) CompletePasswordReset(ctx context.Context, email, code, newPassword string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.config.ClientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       c.secretHash(email),
	})
	if err != nil {
		return c.translateError("confirm_forgot_password", err)
	}
	return nil
}

// ChangePassword は認証済みユーザーのパスワードを変更する。
func (c *Client) ChangePassword(ctx context.Context, accessToken, previousPassword, newPassword string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.ChangePassword(ctx, &cip.ChangePasswordInput{
		AccessToken:      aws.String(accessToken),
		PreviousPassword: aws.String(previousPassword),
		ProposedPassword: aws.String(newPassword),
	})
	if err != nil {
		return c.translateError("change_password", err)
	}
	return nil
}

// DeleteAccount はアカウントを完全に削除する。
func (c *Client) DeleteAccount(ctx context.Context, accessToken string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.DeleteUser(ctx, &cip.DeleteUserInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return c.translateError("delete_user", err)
	}
	return nil
}

// callContext は呼び出し1回分のタイムアウト付きコンテキストを生成する。
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.Timeout)
}

// secretHash はSECRET_HASH（usernameとクライアントIDを連結した文字列の
// HMAC-SHA256をBase64エンコードしたもの）を計算する。
// クライアントシークレットが未設定の場合はnilを返す。
func (c *Client) secretHash(username string) *string {
	if c.config.ClientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(c.config.ClientSecret))
	mac.Write([]byte(username + c.config.ClientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// translateError はSDKのエラーをprovider.Errorに変換する。
// プロバイダーのモデル化されたエラーはコードとメッセージをそのまま保持し、
// トランスポート障害等はそのまま返す（呼び出し元が汎用障害として扱う）。
func (c *Client) translateError(operation string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return &provider.Error{
			Code:    ae.ErrorCode(),
			Message: ae.ErrorMessage(),
		}
	}

	c.logger.Error("provider call failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("provider call %s failed: %w", operation, err)
}

// compile-time interface check
var _ provider.Client = (*Client)(nil)
