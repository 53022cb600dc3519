// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// 操作成功時のメッセージ。クライアント向けの契約であり変更しない。
const (
	msgRegistered      = "Registration successful. Please check your email for verification code."
	msgConfirmed       = "Email confirmed successfully. You can now log in."
	msgCodeResent      = "Verification code sent. Please check your email."
	msgLoggedOut       = "Successfully logged out"
	msgResetInitiated  = "Password reset code sent. Please check your email."
	msgResetCompleted  = "Password reset successfully. You can now log in with your new password."
	msgPasswordChanged = "Password changed successfully."
	msgAccountDeleted  = "Account deleted successfully."
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password string) (string, error)
	Confirm(ctx context.Context, email, code string) error
	ResendConfirmation(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*model.CredentialBundle, error)
	Refresh(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error)
	Logout(ctx context.Context, accessToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, accessToken, previousPassword, newPassword string) error
	DeleteAccount(ctx context.Context, accessToken string) error
	CurrentUser(claims *auth.Claims) (*model.UserProfile, error)
}

// AuthHandler はアカウントライフサイクル操作のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// --- リクエスト型 ---

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type confirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resendConfirmationRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest のusernameはプロバイダー発行のsubject識別子。
// メールアドレスではリフレッシュフローのシークレットハッシュが一致しない。
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
}

type logoutRequest struct {
	AccessToken string `json:"access_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type confirmForgotPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	AccessToken      string `json:"access_token"`
	PreviousPassword string `json:"previous_password"`
	NewPassword      string `json:"new_password"`
}

type deleteAccountRequest struct {
	AccessToken string `json:"access_token"`
}

// --- レスポンス型 ---

type registerResponse struct {
	Message string `json:"message"`
	UserSub string `json:"user_sub"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int32  `json:"expires_in"`
}

// refreshResponse にrefresh_tokenフィールドはない。
// リフレッシュフローでは新しいリフレッシュトークンは発行されない。
type refreshResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int32  `json:"expires_in"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- ハンドラー ---

// Register は新規アカウントを登録する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	sub, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Message: msgRegistered,
		UserSub: sub,
	})
}

// Confirm は確認コードでメールアドレスを検証する。
// POST /auth/confirm
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.Confirm(r.Context(), req.Email, req.Code); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgConfirmed})
}

// ResendConfirmation は確認コードを再送する。
// POST /auth/resend-confirmation
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req resendConfirmationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ResendConfirmation(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgCodeResent})
}

// Login はメールアドレスとパスワードで認証し、トークン一式を返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	bundle, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  bundle.AccessToken,
		IDToken:      bundle.IDToken,
		RefreshToken: bundle.RefreshToken,
		ExpiresIn:    bundle.ExpiresIn,
	})
}

// Refresh はリフレッシュトークンでアクセストークンを再発行する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	creds, err := h.service.Refresh(r.Context(), req.RefreshToken, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: creds.AccessToken,
		IDToken:     creds.IDToken,
		ExpiresIn:   creds.ExpiresIn,
	})
}

// Logout は全セッションのトークンを無効化する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.AccessToken); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgLoggedOut})
}

// ForgotPassword はパスワードリセットコードの送信を開始する。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetInitiated})
}

// ConfirmForgotPassword はリセットコードで新しいパスワードを設定する。
// POST /auth/confirm-forgot-password
func (h *AuthHandler) ConfirmForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req confirmForgotPasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ConfirmForgotPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetCompleted})
}

// ChangePassword は認証済みユーザーのパスワードを変更する。
// POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), req.AccessToken, req.PreviousPassword, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgPasswordChanged})
}

// DeleteAccount はアカウントを完全に削除する。
// DELETE /auth/delete-account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), req.AccessToken); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgAccountDeleted})
}

// Me は検証済みIDトークンのクレームから現在ユーザーの情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthenticatedError("Authentication required"))
		return
	}

	profile, err := h.service.CurrentUser(claims)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		Sub:           profile.Sub,
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
	})
}

// --- ヘルパー関数 ---

// decodeJSONBody はリクエストボディをJSONとしてデコードする。
// 失敗時は400を書き込み、falseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Kind:    model.KindInvalidInput,
			Message: "Request body must be valid JSON",
		})
		return false
	}
	return true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, errorResponse{
		Code:    string(apiErr.Kind),
		Message: apiErr.Message,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeErrorResponse(w, apiErr.HTTPStatus(), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Kind:    model.KindUnavailable,
		Message: "Internal server error",
	})
}
