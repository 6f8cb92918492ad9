package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder は下流が書いたステータスコードとボディサイズを覚えておく。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.written = true
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// requestUser はセッションミドルウェアが解決した利用者を外側のミドルウェアへ渡す入れ物。
// コンテキストは内側にしか伝播しないため、ポインタを先に積んでおく。
type requestUser struct {
	userID string
	auth   string
}

var requestUserContextKey = contextKey("request_user")

// noteSession はロギングミドルウェア配下であれば認証結果を記録する。
func noteSession(ctx context.Context, userID string, bearer bool) {
	ru, ok := ctx.Value(requestUserContextKey).(*requestUser)
	if !ok {
		return
	}
	ru.userID = userID
	ru.auth = "cookie"
	if bearer {
		ru.auth = "bearer"
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware は1リクエストにつき1行のアクセスログを出力するミドルウェアを返す。
// 4xxはWARN、5xxはERRORで出力する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			ru := &requestUser{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestUserContextKey, ru)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			userID := ru.userID
			if userID == "" {
				userID, _ = UserIDFromContext(r.Context())
			}
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}
			if ru.auth != "" {
				attrs = append(attrs, slog.String("auth", ru.auth))
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.statusCode), "http_request", attrs...)
		})
	}
}
