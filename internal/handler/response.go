package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/clipstream/internal/middleware"
	"github.com/hitoshi/clipstream/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// loginFailedMessage はログイン失敗時にユーザー不在とパスワード不一致で共通のメッセージ。
const loginFailedMessage = "Invalid email or password"

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとしてdstに読み込む。
// 解析できない場合はInvalidInputエラーを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewInvalidInputError("Request body is required")
		}
		return model.NewInvalidInputError("Invalid request body")
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを統一フォーマットのHTTPレスポンスに変換する。
// すべてのハンドラーはエラー時にこの関数を使う。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeUserNotFound, model.ErrCodeInvalidCredential:
			// ユーザー不在とパスワード不一致をクライアントから区別できないようにする
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
				Code:     model.ErrCodeInvalidCredential,
				Message:  loginFailedMessage,
				Category: "auth",
			})
			return
		}
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var connErr *model.ConnectionError
	if errors.As(err, &connErr) {
		slog.Error("database unavailable",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredential, model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeVideoNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
