package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// headerWriter はレスポンスヘッダーが送信済みかを報告できるResponseWriter。
type headerWriter interface {
	headerWritten() bool
}

func (sr *statusRecorder) headerWritten() bool {
	return sr.written
}

// NewRecoveryMiddleware はハンドラーのpanicを回収して500を返すミドルウェアを生成する。
// レスポンスの書き込みが始まっていた場合はログのみ残す。
// http.ErrAbortHandlerは接続を中断する合図なので再度panicさせる。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				}
				if ru, ok := r.Context().Value(requestUserContextKey).(*requestUser); ok && ru.userID != "" {
					attrs = append(attrs, slog.String("user_id", ru.userID))
				}
				slog.Error("panic recovered", attrs...)

				if hw, ok := w.(headerWriter); ok && hw.headerWritten() {
					return
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
