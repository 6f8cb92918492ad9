package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/clipstream/internal/metrics"
	"github.com/hitoshi/clipstream/internal/middleware"
	"github.com/hitoshi/clipstream/internal/model"
	"github.com/hitoshi/clipstream/internal/video"
)

// stubVerifier は "alice-token" のみを有効なトークンとして扱うTokenVerifier。
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (*model.Identity, error) {
	if token == "alice-token" {
		return &model.Identity{UserID: "user-alice", Email: "alice@example.com"}, nil
	}
	return nil, model.NewUnauthorizedError()
}

func newRouterTestDeps(t *testing.T) *RouterDeps {
	t.Helper()

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	videos := &mockVideoService{
		listFn: func(ctx context.Context) ([]*model.Video, error) {
			return []*model.Video{sampleVideo()}, nil
		},
		getFn: func(ctx context.Context, id string) (*video.VideoWithOwner, error) {
			if id != "v1" {
				return nil, model.NewVideoNotFoundError()
			}
			return &video.VideoWithOwner{Video: sampleVideo()}, nil
		},
		createFn: func(ctx context.Context, ownerID string, input model.VideoInput) (*model.Video, error) {
			v := sampleVideo()
			v.UserID = ownerID
			v.Title = input.Title
			return v, nil
		},
		likeFn: func(ctx context.Context, videoID, userID string) ([]string, error) {
			return []string{userID}, nil
		},
		unlikeFn: func(ctx context.Context, videoID, userID string) ([]string, error) {
			return []string{}, nil
		},
		listCommentsFn: func(ctx context.Context, videoID string) ([]video.CommentWithAuthor, error) {
			return nil, nil
		},
	}

	return &RouterDeps{
		TokenVerifier: stubVerifier{},
		RateLimiter:   limiter,
		AuthService:   newAliceAuthService(),
		TokenIssuer: &mockTokenIssuer{issueFn: func(identity *model.Identity) (string, time.Time, error) {
			return "alice-token", time.Now().Add(time.Hour), nil
		}},
		VideoService:     videos,
		FeedSource:       &stubFeedSource{},
		FeedConfig:       FeedConfig{BaseURL: "http://localhost:8080"},
		UploadAuthorizer: &mockUploadAuthorizer{},
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	router := NewRouter(newRouterTestDeps(t))

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/videos", http.StatusOK},
		{http.MethodGet, "/api/videos/v1", http.StatusOK},
		{http.MethodGet, "/api/videos/missing", http.StatusNotFound},
		{http.MethodGet, "/api/videos/v1/comments", http.StatusOK},
		{http.MethodGet, "/api/feed.xml", http.StatusOK},
		{http.MethodGet, "/api/csrf-token", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(router, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRouter_ProtectedRoutes_RequireSession(t *testing.T) {
	router := NewRouter(newRouterTestDeps(t))

	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/videos"},
		{http.MethodPost, "/api/videos/v1/like"},
		{http.MethodDelete, "/api/videos/v1/like"},
		{http.MethodPost, "/api/videos/v1/comments"},
		{http.MethodGet, "/api/upload-auth"},
		{http.MethodGet, "/api/auth/me"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(router, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if body := parseErrorResponse(t, w); body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestRouter_CookieSession_RequiresCSRFToken(t *testing.T) {
	router := NewRouter(newRouterTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(`{"title":"t","videoUrl":"https://cdn.example.com/a.mp4"}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "alice-token"})

	w := serve(router, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := parseErrorResponse(t, w); body.Code != model.ErrCodeCSRFInvalid {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFInvalid)
	}
}

func TestRouter_CookieSession_WithCSRFToken_Creates(t *testing.T) {
	router := NewRouter(newRouterTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(`{"title":"t","videoUrl":"https://cdn.example.com/a.mp4"}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "alice-token"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-abc"})
	req.Header.Set("X-CSRF-Token", "csrf-abc")

	w := serve(router, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestRouter_BearerSession_SkipsCSRF(t *testing.T) {
	router := NewRouter(newRouterTestDeps(t))

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/videos", `{"title":"t","videoUrl":"https://cdn.example.com/a.mp4"}`, http.StatusCreated},
		{http.MethodPost, "/api/videos/v1/like", "", http.StatusOK},
		{http.MethodDelete, "/api/videos/v1/like", "", http.StatusOK},
		{http.MethodGet, "/api/auth/me", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer alice-token")

			w := serve(router, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_InvalidBearerToken_Returns401(t *testing.T) {
	router := NewRouter(newRouterTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/api/videos/v1/like", nil)
	req.Header.Set("Authorization", "Bearer forged")

	if w := serve(router, req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_LoginIsRateLimitedPerClientIP(t *testing.T) {
	deps := newRouterTestDeps(t)
	config := middleware.DefaultRateLimiterConfig()
	config.AuthBurst = 2
	limiter := middleware.NewRateLimiter(config)
	t.Cleanup(limiter.Stop)
	deps.RateLimiter = limiter
	router := NewRouter(deps)

	login := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
		req.RemoteAddr = ip + ":40000"
		return serve(router, req).Code
	}

	for i := 0; i < 2; i++ {
		if code := login("203.0.113.7"); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, code, http.StatusUnauthorized)
		}
	}
	if code := login("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := login("198.51.100.1"); code != http.StatusUnauthorized {
		t.Errorf("other client status = %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestRouter_Health_ReportsUnavailableDependency(t *testing.T) {
	deps := newRouterTestDeps(t)
	deps.HealthChecks = map[string]HealthCheck{
		"mongodb": func(ctx context.Context) error { return errors.New("down") },
	}
	router := NewRouter(deps)

	if w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics_ServedOnlyWithGatherer(t *testing.T) {
	t.Run("without gatherer", func(t *testing.T) {
		router := NewRouter(newRouterTestDeps(t))
		if w := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("with gatherer", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		deps := newRouterTestDeps(t)
		deps.Metrics = metrics.NewCollector(reg)
		deps.MetricsGatherer = reg
		router := NewRouter(deps)

		serve(router, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

		w := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), "clipstream_http_requests_total") {
			t.Errorf("metrics output missing clipstream_http_requests_total")
		}
	})
}
