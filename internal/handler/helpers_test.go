package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/clipstream/internal/middleware"
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseErrorResponse はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// recordingMetrics はドメインメトリクスの呼び出し回数を記録するMetricsCollectorのモック。
type recordingMetrics struct {
	mu            sync.Mutex
	registrations int
	logins        map[string]int
	videosCreated int
	likes         map[string]int
	comments      int
	httpRequests  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		logins: make(map[string]int),
		likes:  make(map[string]int),
	}
}

func (m *recordingMetrics) RecordHTTPRequest(string, string, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpRequests++
}

func (m *recordingMetrics) RecordRegistration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations++
}

func (m *recordingMetrics) RecordLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[result]++
}

func (m *recordingMetrics) RecordVideoCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videosCreated++
}

func (m *recordingMetrics) RecordLike(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes[action]++
}

func (m *recordingMetrics) RecordComment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments++
}
