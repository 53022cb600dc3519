package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/provider"
)

// mockProviderClient はprovider.Clientのテスト用実装。
// 呼び出し回数を記録し、設定された関数フィールドに委譲する。
type mockProviderClient struct {
	registerFn              func(ctx context.Context, email, password string) (string, error)
	confirmRegistrationFn   func(ctx context.Context, email, code string) error
	resendConfirmationFn    func(ctx context.Context, email string) error
	authenticateFn          func(ctx context.Context, email, password string) (*model.CredentialBundle, error)
	refreshFn               func(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error)
	globalSignOutFn         func(ctx context.Context, accessToken string) error
	initiatePasswordResetFn func(ctx context.Context, email string) error
	completePasswordResetFn func(ctx context.Context, email, code, newPassword string) error
	changePasswordFn        func(ctx context.Context, accessToken, previousPassword, newPassword string) error
	deleteAccountFn         func(ctx context.Context, accessToken string) error

	calls int
}

func (m *mockProviderClient) Register(ctx context.Context, email, password string) (string, error) {
	m.calls++
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password)
	}
	return "test-sub", nil
}

func (m *mockProviderClient) ConfirmRegistration(ctx context.Context, email, code string) error {
	m.calls++
	if m.confirmRegistrationFn != nil {
		return m.confirmRegistrationFn(ctx, email, code)
	}
	return nil
}

func (m *mockProviderClient) ResendConfirmationCode(ctx context.Context, email string) error {
	m.calls++
	if m.resendConfirmationFn != nil {
		return m.resendConfirmationFn(ctx, email)
	}
	return nil
}

func (m *mockProviderClient) Authenticate(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
	m.calls++
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return &model.CredentialBundle{AccessToken: "a.b.c", IDToken: "d.e.f", RefreshToken: "r", ExpiresIn: 3600}, nil
}

func (m *mockProviderClient) Refresh(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error) {
	m.calls++
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken, subjectID)
	}
	return &model.RefreshedCredentials{AccessToken: "a.b.c", IDToken: "d.e.f", ExpiresIn: 3600}, nil
}

func (m *mockProviderClient) GlobalSignOut(ctx context.Context, accessToken string) error {
	m.calls++
	if m.globalSignOutFn != nil {
		return m.globalSignOutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockProviderClient) InitiatePasswordReset(ctx context.Context, email string) error {
	m.calls++
	if m.initiatePasswordResetFn != nil {
		return m.initiatePasswordResetFn(ctx, email)
	}
	return nil
}

func (m *mockProviderClient) CompletePasswordReset(ctx context.Context, email, code, newPassword string) error {
	m.calls++
	if m.completePasswordResetFn != nil {
		return m.completePasswordResetFn(ctx, email, code, newPassword)
	}
	return nil
}

func (m *mockProviderClient) ChangePassword(ctx context.Context, accessToken, previousPassword, newPassword string) error {
	m.calls++
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, accessToken, previousPassword, newPassword)
	}
	return nil
}

func (m *mockProviderClient) DeleteAccount(ctx context.Context, accessToken string) error {
	m.calls++
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, accessToken)
	}
	return nil
}

// mockRecorder はRecorderのテスト用実装。
type mockRecorder struct {
	operations map[string]int
	codes      map[string]int
	latencies  int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		operations: make(map[string]int),
		codes:      make(map[string]int),
	}
}

func (m *mockRecorder) RecordOperation(operation string, result string) {
	m.operations[operation+"/"+result]++
}

func (m *mockRecorder) RecordProviderError(operation string, code string) {
	m.codes[operation+"/"+code]++
}

func (m *mockRecorder) RecordProviderLatency(d time.Duration) {
	m.latencies++
}

func apiErrorFrom(t *testing.T, err error) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	return apiErr
}

func TestService_Register_Success(t *testing.T) {
	mock := &mockProviderClient{
		registerFn: func(ctx context.Context, email, password string) (string, error) {
			if email != "user@example.com" {
				t.Errorf("email = %q, want user@example.com", email)
			}
			return "sub-123", nil
		},
	}
	svc := NewService(mock, nil)

	sub, err := svc.Register(context.Background(), "user@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sub != "sub-123" {
		t.Errorf("sub = %q, want sub-123", sub)
	}
}

func TestService_Register_DuplicateEmail_ReturnsConflict(t *testing.T) {
	mock := &mockProviderClient{
		registerFn: func(ctx context.Context, email, password string) (string, error) {
			return "", &provider.Error{Code: provider.CodeUsernameExists, Message: "User account already exists"}
		},
	}
	svc := NewService(mock, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "Passw0rd!")
	apiErr := apiErrorFrom(t, err)

	if apiErr.Kind != model.KindConflict {
		t.Errorf("kind = %q, want %q", apiErr.Kind, model.KindConflict)
	}
	if apiErr.HTTPStatus() != 409 {
		t.Errorf("status = %d, want 409", apiErr.HTTPStatus())
	}
	if apiErr.Message != "An account with this email already exists" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestService_Register_InvalidEmail_RejectedWithoutProviderCall(t *testing.T) {
	tests := []string{"", "not-an-email", "user @example.com", "Display Name <user@example.com>"}

	for _, email := range tests {
		mock := &mockProviderClient{}
		svc := NewService(mock, nil)

		_, err := svc.Register(context.Background(), email, "Passw0rd!")
		apiErr := apiErrorFrom(t, err)

		if apiErr.Kind != model.KindInvalidInput {
			t.Errorf("Register(%q) kind = %q, want %q", email, apiErr.Kind, model.KindInvalidInput)
		}
		if mock.calls != 0 {
			t.Errorf("Register(%q) provider calls = %d, want 0", email, mock.calls)
		}
	}
}

func TestService_Register_EmptyPassword_Rejected(t *testing.T) {
	mock := &mockProviderClient{}
	svc := NewService(mock, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "")
	apiErr := apiErrorFrom(t, err)

	if apiErr.Message != "Password is required" {
		t.Errorf("message = %q, want %q", apiErr.Message, "Password is required")
	}
	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestService_Confirm_ExpiredCode(t *testing.T) {
	mock := &mockProviderClient{
		confirmRegistrationFn: func(ctx context.Context, email, code string) error {
			return &provider.Error{Code: provider.CodeExpiredCode}
		},
	}
	svc := NewService(mock, nil)

	err := svc.Confirm(context.Background(), "user@example.com", "123456")
	apiErr := apiErrorFrom(t, err)

	if apiErr.Message != "Verification code has expired. Please request a new one." {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestService_Confirm_EmptyCode_Rejected(t *testing.T) {
	mock := &mockProviderClient{}
	svc := NewService(mock, nil)

	err := svc.Confirm(context.Background(), "user@example.com", "")
	apiErr := apiErrorFrom(t, err)

	if apiErr.Message != "Verification code is required" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestService_Login_Success_ReturnsBundle(t *testing.T) {
	svc := NewService(&mockProviderClient{}, nil)

	bundle, err := svc.Login(context.Background(), "user@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if bundle.AccessToken == "" || bundle.IDToken == "" || bundle.RefreshToken == "" {
		t.Errorf("bundle missing tokens: %+v", bundle)
	}
	if bundle.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", bundle.ExpiresIn)
	}
}

// 存在しないアカウントと誤ったパスワードでレスポンスがバイト単位で一致する。
func TestService_Login_MissingUserAndBadPassword_SameResponse(t *testing.T) {
	missingUser := &mockProviderClient{
		authenticateFn: func(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
			return nil, &provider.Error{Code: provider.CodeUserNotFound, Message: "User does not exist."}
		},
	}
	badPassword := &mockProviderClient{
		authenticateFn: func(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
			return nil, &provider.Error{Code: provider.CodeNotAuthorized, Message: "Incorrect username or password."}
		},
	}

	_, err1 := NewService(missingUser, nil).Login(context.Background(), "ghost@example.com", "Passw0rd!")
	_, err2 := NewService(badPassword, nil).Login(context.Background(), "user@example.com", "wrong")

	apiErr1 := apiErrorFrom(t, err1)
	apiErr2 := apiErrorFrom(t, err2)

	if apiErr1.Kind != apiErr2.Kind {
		t.Errorf("kinds differ: %q vs %q", apiErr1.Kind, apiErr2.Kind)
	}
	if apiErr1.HTTPStatus() != 401 || apiErr2.HTTPStatus() != 401 {
		t.Errorf("statuses = %d, %d, want 401, 401", apiErr1.HTTPStatus(), apiErr2.HTTPStatus())
	}
	if apiErr1.Message != apiErr2.Message {
		t.Errorf("messages differ: %q vs %q", apiErr1.Message, apiErr2.Message)
	}
	if apiErr1.Message != "Invalid email or password" {
		t.Errorf("message = %q, want %q", apiErr1.Message, "Invalid email or password")
	}
}

func TestService_Login_UnconfirmedUser_Returns403(t *testing.T) {
	mock := &mockProviderClient{
		authenticateFn: func(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
			return nil, &provider.Error{Code: provider.CodeUserNotConfirmed}
		},
	}
	svc := NewService(mock, nil)

	_, err := svc.Login(context.Background(), "user@example.com", "Passw0rd!")
	apiErr := apiErrorFrom(t, err)

	if apiErr.HTTPStatus() != 403 {
		t.Errorf("status = %d, want 403", apiErr.HTTPStatus())
	}
	if apiErr.Message != "Email not verified. Please confirm your email first." {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestService_Refresh_RequiresTokenAndSubject(t *testing.T) {
	mock := &mockProviderClient{}
	svc := NewService(mock, nil)

	_, err := svc.Refresh(context.Background(), "", "sub-123")
	if apiErr := apiErrorFrom(t, err); apiErr.Message != "Refresh token is required" {
		t.Errorf("message = %q", apiErr.Message)
	}

	_, err = svc.Refresh(context.Background(), "refresh-token", "")
	if apiErr := apiErrorFrom(t, err); apiErr.Message != "Username is required" {
		t.Errorf("message = %q", apiErr.Message)
	}

	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestService_Refresh_InvalidToken_Returns401(t *testing.T) {
	mock := &mockProviderClient{
		refreshFn: func(ctx context.Context, refreshToken, subjectID string) (*model.RefreshedCredentials, error) {
			return nil, &provider.Error{Code: provider.CodeNotAuthorized}
		},
	}
	svc := NewService(mock, nil)

	_, err := svc.Refresh(context.Background(), "stale-token", "sub-123")
	apiErr := apiErrorFrom(t, err)

	if apiErr.HTTPStatus() != 401 {
		t.Errorf("status = %d, want 401", apiErr.HTTPStatus())
	}
	if apiErr.Message != "Invalid or expired refresh token" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestService_Logout_MalformedAccessToken_Rejected(t *testing.T) {
	tests := []string{"", "no-dots", "a.b", "a.b.c.d", "..", "a..c"}

	for _, token := range tests {
		mock := &mockProviderClient{}
		svc := NewService(mock, nil)

		err := svc.Logout(context.Background(), token)
		apiErr := apiErrorFrom(t, err)

		if apiErr.Kind != model.KindInvalidInput {
			t.Errorf("Logout(%q) kind = %q, want %q", token, apiErr.Kind, model.KindInvalidInput)
		}
		if mock.calls != 0 {
			t.Errorf("Logout(%q) provider calls = %d, want 0", token, mock.calls)
		}
	}
}

// プロバイダーがUserNotFoundを返しても成功として提示する（列挙防御）。
func TestService_ForgotPassword_MissingUser_PresentsSuccess(t *testing.T) {
	mock := &mockProviderClient{
		initiatePasswordResetFn: func(ctx context.Context, email string) error {
			return &provider.Error{Code: provider.CodeUserNotFound}
		},
	}
	recorder := newMockRecorder()
	svc := NewService(mock, recorder)

	err := svc.ForgotPassword(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	// 内部メトリクスには実際のコードが記録される
	if recorder.codes["forgot_password/UserNotFoundException"] != 1 {
		t.Errorf("provider error not recorded: %v", recorder.codes)
	}
	if recorder.operations["forgot_password/success"] != 1 {
		t.Errorf("operation not recorded as success: %v", recorder.operations)
	}
}

func TestService_ConfirmForgotPassword_RequiredFields(t *testing.T) {
	mock := &mockProviderClient{}
	svc := NewService(mock, nil)

	err := svc.ConfirmForgotPassword(context.Background(), "user@example.com", "", "NewPassw0rd!")
	if apiErr := apiErrorFrom(t, err); apiErr.Message != "Verification code is required" {
		t.Errorf("message = %q", apiErr.Message)
	}

	err = svc.ConfirmForgotPassword(context.Background(), "user@example.com", "123456", "")
	if apiErr := apiErrorFrom(t, err); apiErr.Message != "New password is required" {
		t.Errorf("message = %q", apiErr.Message)
	}

	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestService_ChangePassword_WeakNewPassword_PassesProviderMessage(t *testing.T) {
	mock := &mockProviderClient{
		changePasswordFn: func(ctx context.Context, accessToken, previousPassword, newPassword string) error {
			return &provider.Error{
				Code:    provider.CodeInvalidPassword,
				Message: "Password did not conform with policy: Password not long enough",
			}
		},
	}
	svc := NewService(mock, nil)

	err := svc.ChangePassword(context.Background(), "a.b.c", "OldPassw0rd!", "short")
	apiErr := apiErrorFrom(t, err)

	if apiErr.Kind != model.KindInvalidInput {
		t.Errorf("kind = %q, want %q", apiErr.Kind, model.KindInvalidInput)
	}
	if apiErr.Message != "Password did not conform with policy: Password not long enough" {
		t.Errorf("message = %q, want provider message passed through", apiErr.Message)
	}
}

func TestService_DeleteAccount_Success(t *testing.T) {
	mock := &mockProviderClient{}
	svc := NewService(mock, nil)

	if err := svc.DeleteAccount(context.Background(), "a.b.c"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("provider calls = %d, want 1", mock.calls)
	}
}

func TestService_TransportFailure_ReturnsGenericUnavailable(t *testing.T) {
	mock := &mockProviderClient{
		authenticateFn: func(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	svc := NewService(mock, nil)

	_, err := svc.Login(context.Background(), "user@example.com", "Passw0rd!")
	apiErr := apiErrorFrom(t, err)

	if apiErr.Kind != model.KindUnavailable {
		t.Errorf("kind = %q, want %q", apiErr.Kind, model.KindUnavailable)
	}
	if apiErr.Message != "Login failed" {
		t.Errorf("message = %q, want operation fallback", apiErr.Message)
	}
}

// CurrentUserはプロバイダーを呼び出さず、検証済みクレームのみから構成する。
func TestService_CurrentUser_NoProviderCall(t *testing.T) {
	mock := &mockProviderClient{}
	svc := NewService(mock, nil)

	profile, err := svc.CurrentUser(&auth.Claims{
		Subject:       "sub-123",
		Email:         "user@example.com",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if profile.Sub != "sub-123" {
		t.Errorf("Sub = %q, want sub-123", profile.Sub)
	}
	if profile.Email != "user@example.com" {
		t.Errorf("Email = %q", profile.Email)
	}
	if !profile.EmailVerified {
		t.Error("EmailVerified = false, want true")
	}
	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestService_CurrentUser_NilClaims_ReturnsUnauthenticated(t *testing.T) {
	svc := NewService(&mockProviderClient{}, nil)

	_, err := svc.CurrentUser(nil)
	apiErr := apiErrorFrom(t, err)

	if apiErr.Kind != model.KindUnauthenticated {
		t.Errorf("kind = %q, want %q", apiErr.Kind, model.KindUnauthenticated)
	}

	_, err = svc.CurrentUser(&auth.Claims{Subject: ""})
	apiErr = apiErrorFrom(t, err)
	if apiErr.Kind != model.KindUnauthenticated {
		t.Errorf("kind = %q, want %q", apiErr.Kind, model.KindUnauthenticated)
	}
}

func TestService_Metrics_RecordedPerCall(t *testing.T) {
	mock := &mockProviderClient{
		authenticateFn: func(ctx context.Context, email, password string) (*model.CredentialBundle, error) {
			return nil, &provider.Error{Code: provider.CodeNotAuthorized}
		},
	}
	recorder := newMockRecorder()
	svc := NewService(mock, recorder)

	_, _ = svc.Login(context.Background(), "user@example.com", "wrong")

	if recorder.latencies != 1 {
		t.Errorf("latencies = %d, want 1", recorder.latencies)
	}
	if recorder.codes["login/NotAuthorizedException"] != 1 {
		t.Errorf("provider error not recorded: %v", recorder.codes)
	}
	if recorder.operations["login/unauthenticated"] != 1 {
		t.Errorf("operation result not recorded: %v", recorder.operations)
	}
}
