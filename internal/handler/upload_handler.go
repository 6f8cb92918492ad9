package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/clipstream/internal/middleware"
	"github.com/hitoshi/clipstream/internal/model"
	"github.com/hitoshi/clipstream/internal/upload"
)

// UploadAuthorizer は署名付きアップロードURLの発行に必要なインターフェース。
type UploadAuthorizer interface {
	Authorize(ctx context.Context, userID, fileName, contentType string) (*upload.Authorization, error)
}

// UploadHandler はオブジェクトストレージへの直接アップロードを許可するHTTPハンドラー。
type UploadHandler struct {
	authorizer UploadAuthorizer
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(authorizer UploadAuthorizer) *UploadHandler {
	return &UploadHandler{authorizer: authorizer}
}

// Authorize はアップロード用の署名付きPUT URLを返す。
// GET /api/upload-auth?fileName=clip.mp4&contentType=video/mp4
func (h *UploadHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	q := r.URL.Query()
	auth, err := h.authorizer.Authorize(r.Context(), userID, q.Get("fileName"), q.Get("contentType"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, auth)
}
