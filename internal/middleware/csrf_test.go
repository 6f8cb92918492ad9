package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/clipstream/internal/model"
)

func csrfCookieFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethods_PassWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/api/upload-auth", nil))

			if !called {
				t.Errorf("%s should reach the handler without a CSRF token", method)
			}
		})
	}
}

func TestCSRFMiddleware_StateChangingRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"post without cookie", http.MethodPost, "", "abc", http.StatusForbidden},
		{"post without header", http.MethodPost, "abc", "", http.StatusForbidden},
		{"post mismatched token", http.MethodPost, "abc", "abd", http.StatusForbidden},
		{"post different length", http.MethodPost, "abc", "abcdef", http.StatusForbidden},
		{"post matching token", http.MethodPost, "abc", "abc", http.StatusNoContent},
		{"delete without token", http.MethodDelete, "", "", http.StatusForbidden},
		{"delete matching token", http.MethodDelete, "tok", "tok", http.StatusNoContent},
		{"put without token", http.MethodPut, "", "", http.StatusForbidden},
		{"patch without token", http.MethodPatch, "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(tt.method, "/api/videos/v1/like", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if body.Code != model.ErrCodeCSRFInvalid {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFInvalid)
				}
			}
		})
	}
}

func TestCSRFMiddleware_GET_IssuesCookieOnce(t *testing.T) {
	config := CSRFConfig{CookieSecure: true, CookieDomain: "clips.example.com"}
	handler := NewCSRFMiddleware(config)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/upload-auth", nil))

	cookie := csrfCookieFrom(t, w)
	if cookie == nil {
		t.Fatal("expected csrf_token cookie")
	}
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(cookie.Value))
	}
	if cookie.HttpOnly {
		t.Error("csrf cookie must be readable by JavaScript")
	}
	if !cookie.Secure || cookie.Domain != "clips.example.com" || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes = %+v", cookie)
	}
	if cookie.MaxAge != int((24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want 24h", cookie.MaxAge)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/upload-auth", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if csrfCookieFrom(t, w) != nil {
		t.Error("existing csrf cookie should not be replaced")
	}
}

func TestCSRFTokenHandler_IssuesAndReusesToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{TokenTTL: time.Hour})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	cookie := csrfCookieFrom(t, w)
	if cookie == nil || cookie.Value != body["token"] {
		t.Fatalf("cookie = %+v, body token = %q", cookie, body["token"])
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", cookie.MaxAge)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: body["token"]})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var again map[string]string
	if err := json.NewDecoder(w.Body).Decode(&again); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if again["token"] != body["token"] {
		t.Errorf("token = %q, want existing %q", again["token"], body["token"])
	}
	if csrfCookieFrom(t, w) != nil {
		t.Error("existing token should not be re-issued")
	}
}

func TestCSRFMiddleware_BearerAuthenticated_SkipsValidation(t *testing.T) {
	handlerCalled := false
	handler := NewSessionMiddleware(validTokenVerifier())(NewCSRFMiddleware(CSRFConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusCreated)
		})))

	req := httptest.NewRequest(http.MethodPost, "/api/videos", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !handlerCalled || w.Code != http.StatusCreated {
		t.Errorf("status = %d, called = %v; bearer requests need no CSRF token", w.Code, handlerCalled)
	}
}

func TestCSRFMiddleware_CookieAuthenticated_StillRequiresToken(t *testing.T) {
	handler := NewSessionMiddleware(validTokenVerifier())(NewCSRFMiddleware(CSRFConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called without CSRF token")
		})))

	req := httptest.NewRequest(http.MethodPost, "/api/videos", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
