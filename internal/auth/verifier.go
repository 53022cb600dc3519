// Package auth はインバウンドリクエストのトークン検証を提供する。
// 署名と有効期限の検証はプロバイダーの公開鍵セット（JWKS）に委譲し、
// 本システムはクレームを取り出すのみ。検証に失敗した場合は常に拒否する。
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Claims は検証済みトークンから取り出したクレームを表す。
type Claims struct {
	Subject       string // プロバイダー発行の安定したsubject識別子
	Email         string
	EmailVerified bool
}

// OIDCVerifier はOIDCディスカバリで取得したJWKSに対してIDトークンを検証する。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier はissuerのディスカバリドキュメントからOIDCVerifierを生成する。
// issuerはユーザープールのissuer URL、clientIDはaudienceの検証に使用する。
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: p.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify はトークンの署名・有効期限・audienceを検証し、クレームを返す。
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}

	if idToken.Subject == "" {
		return nil, errors.New("token missing sub claim")
	}

	return &Claims{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}
