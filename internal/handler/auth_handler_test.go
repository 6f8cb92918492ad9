package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/clipstream/internal/metrics"
	"github.com/hitoshi/clipstream/internal/middleware"
	"github.com/hitoshi/clipstream/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn     func(ctx context.Context, email, password, name string) (*model.User, error)
	authenticateFn func(ctx context.Context, email, password string) (*model.Identity, error)
	currentUserFn  func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password, name)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockTokenIssuer struct {
	issueFn func(identity *model.Identity) (string, time.Time, error)
}

func (m *mockTokenIssuer) Issue(identity *model.Identity) (string, time.Time, error) {
	if m.issueFn != nil {
		return m.issueFn(identity)
	}
	return "token-" + identity.UserID, time.Now().Add(time.Hour), nil
}

var alice = &model.User{ID: "user-alice", Email: "alice@example.com", Name: "alice", PasswordHash: "$2a$10$hash"}

func newAliceAuthService() *mockAuthService {
	return &mockAuthService{
		authenticateFn: func(ctx context.Context, email, password string) (*model.Identity, error) {
			if email != alice.Email {
				return nil, model.NewUserNotFoundError()
			}
			if password != "secret123" {
				return nil, model.NewInvalidCredentialError()
			}
			return &model.Identity{UserID: alice.ID, Email: alice.Email}, nil
		},
		currentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID == alice.ID {
				return alice, nil
			}
			return nil, model.NewUnauthorizedError()
		},
	}
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

// --- Register ---

func TestAuthHandler_Register_Returns201WithoutPasswordHash(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name string) (*model.User, error) {
			if email != "alice@example.com" || password != "secret123" || name != "Alice" {
				t.Errorf("unexpected args: %q %q %q", email, password, name)
			}
			return &model.User{ID: "user-1", Email: email, Name: name, PasswordHash: "$2a$10$secret"}, nil
		},
	}
	rec := newRecordingMetrics()
	h := NewAuthHandler(svc, &mockTokenIssuer{}, rec, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		jsonBody(t, map[string]string{"email": "alice@example.com", "password": "secret123", "name": "Alice"}))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if strings.Contains(w.Body.String(), "secret") || strings.Contains(w.Body.String(), "password") {
		t.Errorf("response leaks password data: %s", w.Body.String())
	}

	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ID != "user-1" || body.Email != "alice@example.com" || body.Name != "Alice" {
		t.Errorf("body = %+v", body)
	}
	if rec.registrations != 1 {
		t.Errorf("registrations = %d, want 1", rec.registrations)
	}
}

func TestAuthHandler_Register_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate email", model.NewEmailTakenError(), http.StatusConflict, model.ErrCodeEmailTaken},
		{"invalid input", model.NewInvalidInputError("Password must be at least 6 characters"), http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"unexpected", errors.New("pq: connection refused"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, email, password, name string) (*model.User, error) {
					return nil, tt.err
				},
			}
			rec := newRecordingMetrics()
			h := NewAuthHandler(svc, &mockTokenIssuer{}, rec, AuthHandlerConfig{})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
				jsonBody(t, map[string]string{"email": "a@example.com", "password": "secret123"}))
			w := httptest.NewRecorder()

			h.Register(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := parseErrorResponse(t, w)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if strings.Contains(body.Error, "pq:") {
				t.Errorf("internal detail leaked: %q", body.Error)
			}
			if rec.registrations != 0 {
				t.Errorf("registrations = %d, want 0", rec.registrations)
			}
		})
	}
}

func TestAuthHandler_Register_MalformedBody_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockTokenIssuer{}, nil, AuthHandlerConfig{})

	for _, body := range []string{"", "{not json"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()

		h.Register(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

// --- Login ---

func TestAuthHandler_Login_SetsSessionCookieAndReturnsToken(t *testing.T) {
	expiresAt := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second).UTC()
	issuer := &mockTokenIssuer{
		issueFn: func(identity *model.Identity) (string, time.Time, error) {
			if identity.UserID != alice.ID {
				t.Errorf("identity = %+v", identity)
			}
			return "signed-token", expiresAt, nil
		},
	}
	rec := newRecordingMetrics()
	h := NewAuthHandler(newAliceAuthService(), issuer, rec, AuthHandlerConfig{CookieSecure: true, CookieDomain: "example.com"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, map[string]string{"email": "alice@example.com", "password": "secret123"}))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body loginResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Token != "signed-token" {
		t.Errorf("token = %q, want %q", body.Token, "signed-token")
	}
	if !body.ExpiresAt.Equal(expiresAt) {
		t.Errorf("expiresAt = %v, want %v", body.ExpiresAt, expiresAt)
	}
	if body.User.Email != "alice@example.com" {
		t.Errorf("user = %+v", body.User)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if cookie.Value != "signed-token" {
		t.Errorf("cookie value = %q", cookie.Value)
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Errorf("cookie HttpOnly=%v Secure=%v, want both true", cookie.HttpOnly, cookie.Secure)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.MaxAge <= 0 {
		t.Errorf("cookie MaxAge = %d, want > 0", cookie.MaxAge)
	}
	if rec.logins[metrics.LoginSuccess] != 1 {
		t.Errorf("login success = %d, want 1", rec.logins[metrics.LoginSuccess])
	}
}

func TestAuthHandler_Login_UnknownUserAndWrongPassword_AreIndistinguishable(t *testing.T) {
	rec := newRecordingMetrics()
	h := NewAuthHandler(newAliceAuthService(), &mockTokenIssuer{}, rec, AuthHandlerConfig{})

	send := func(email, password string) (int, string) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, map[string]string{"email": email, "password": password}))
		w := httptest.NewRecorder()
		h.Login(w, req)
		if len(w.Result().Cookies()) != 0 {
			t.Errorf("no cookie should be set on failed login")
		}
		return w.Code, w.Body.String()
	}

	wrongStatus, wrongBody := send("alice@example.com", "secret124")
	unknownStatus, unknownBody := send("nobody@example.com", "secret123")

	if wrongStatus != http.StatusUnauthorized || unknownStatus != http.StatusUnauthorized {
		t.Errorf("statuses = %d/%d, want 401/401", wrongStatus, unknownStatus)
	}
	if wrongBody != unknownBody {
		t.Errorf("bodies differ:\n%s\n%s", wrongBody, unknownBody)
	}
	if !strings.Contains(wrongBody, "Invalid email or password") {
		t.Errorf("body = %s", wrongBody)
	}
	if rec.logins[metrics.LoginFailure] != 2 {
		t.Errorf("login failures = %d, want 2", rec.logins[metrics.LoginFailure])
	}
}

func TestAuthHandler_Login_IssueError_Returns500(t *testing.T) {
	issuer := &mockTokenIssuer{
		issueFn: func(identity *model.Identity) (string, time.Time, error) {
			return "", time.Time{}, errors.New("signing failed")
		},
	}
	h := NewAuthHandler(newAliceAuthService(), issuer, nil, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, map[string]string{"email": "alice@example.com", "password": "secret123"}))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- Logout / Me ---

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockTokenIssuer{}, nil, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "some-token"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != middleware.SessionCookieName {
		t.Fatalf("cookies = %v, want one session cookie", cookies)
	}
	if cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Errorf("cookie should be expired, got MaxAge=%d Value=%q", cookies[0].MaxAge, cookies[0].Value)
	}
}

func TestAuthHandler_Me_ReturnsCurrentUser(t *testing.T) {
	h := NewAuthHandler(newAliceAuthService(), &mockTokenIssuer{}, nil, AuthHandlerConfig{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), alice.ID)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ID != alice.ID || body.Email != alice.Email {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Me_NoIdentity_Returns401(t *testing.T) {
	h := NewAuthHandler(newAliceAuthService(), &mockTokenIssuer{}, nil, AuthHandlerConfig{})

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_DeletedUser_Returns401(t *testing.T) {
	h := NewAuthHandler(newAliceAuthService(), &mockTokenIssuer{}, nil, AuthHandlerConfig{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "user-gone")
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
