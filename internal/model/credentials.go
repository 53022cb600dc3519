package model

// CredentialBundle は認証成功時にプロバイダーが発行するトークン一式を表す。
// 本システムはこれを保持せず、レスポンスとして中継するのみ。
type CredentialBundle struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int32
}

// RefreshedCredentials はリフレッシュで再発行されるトークンを表す。
// リフレッシュで新しいリフレッシュトークンは発行されないため、
// 意図的にフィールドを持たない。
type RefreshedCredentials struct {
	AccessToken string
	IDToken     string
	ExpiresIn   int32
}

// UserProfile は検証済みアクセストークンのクレームから再構成した
// 現在ユーザーの情報を表す。プロバイダーへの問い合わせは行わない。
type UserProfile struct {
	Sub           string
	Email         string
	EmailVerified bool
}
