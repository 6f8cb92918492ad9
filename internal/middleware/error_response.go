package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/clipstream/internal/model"
)

// ErrorResponseBody はすべてのエラーレスポンスで共通のJSONボディ。
type ErrorResponseBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteErrorResponse はAPIErrorを {"error","code"} 形式で書き込む。
// エラー応答はキャッシュさせない。apiErrがnilの場合は500として扱う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		statusCode, apiErr = http.StatusInternalServerError, model.NewInternalError()
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponseBody{Error: apiErr.Message, Code: apiErr.Code}); err != nil {
		slog.Debug("failed to write error body", slog.String("code", apiErr.Code), slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は詳細を伏せた500を書き込む。詳細は呼び出し側でログに残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
