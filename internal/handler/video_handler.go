package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/clipstream/internal/metrics"
	"github.com/hitoshi/clipstream/internal/middleware"
	"github.com/hitoshi/clipstream/internal/model"
	"github.com/hitoshi/clipstream/internal/video"
)

// VideoServiceInterface は動画ハンドラーが必要とするサービスインターフェース。
type VideoServiceInterface interface {
	Create(ctx context.Context, ownerID string, input model.VideoInput) (*model.Video, error)
	Get(ctx context.Context, id string) (*video.VideoWithOwner, error)
	List(ctx context.Context) ([]*model.Video, error)
	Like(ctx context.Context, videoID, userID string) ([]string, error)
	Unlike(ctx context.Context, videoID, userID string) ([]string, error)
	AddComment(ctx context.Context, videoID, userID, content string) (*video.CommentWithAuthor, error)
	ListComments(ctx context.Context, videoID string) ([]video.CommentWithAuthor, error)
}

// VideoHandler は動画・いいね・コメントのHTTPハンドラー。
type VideoHandler struct {
	service VideoServiceInterface
	metrics metrics.MetricsCollector
}

// NewVideoHandler はVideoHandlerを生成する。
func NewVideoHandler(service VideoServiceInterface, collector metrics.MetricsCollector) *VideoHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &VideoHandler{service: service, metrics: collector}
}

type transformationBody struct {
	Height  int `json:"height"`
	Width   int `json:"width"`
	Quality int `json:"quality,omitempty"`
}

// createVideoRequest は動画作成リクエストのボディ。
type createVideoRequest struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Caption        string              `json:"caption"`
	VideoURL       string              `json:"videoUrl"`
	ThumbnailURL   string              `json:"thumbnailUrl"`
	Controls       *bool               `json:"controls"`
	Transformation *transformationBody `json:"transformation"`
}

type addCommentRequest struct {
	Content string `json:"content"`
}

// videoResponse は動画のAPIレスポンス。
type videoResponse struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Caption        string             `json:"caption"`
	VideoURL       string             `json:"videoUrl"`
	ThumbnailURL   string             `json:"thumbnailUrl"`
	Controls       bool               `json:"controls"`
	Transformation transformationBody `json:"transformation"`
	UserID         string             `json:"userId"`
	Owner          *model.Author      `json:"owner,omitempty"`
	Likes          []string           `json:"likes"`
	Comments       []commentResponse  `json:"comments"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Author    *model.Author `json:"author,omitempty"`
}

type likesResponse struct {
	Likes []string `json:"likes"`
}

type commentsResponse struct {
	Comments []commentResponse `json:"comments"`
}

type commentCreatedResponse struct {
	Comment commentResponse `json:"comment"`
}

// ListVideos は全動画を作成順に返す。
// GET /api/videos
func (h *VideoHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		resp = append(resp, toVideoResponse(v, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetVideo は動画を投稿者情報付きで返す。
// GET /api/videos/{id}
func (h *VideoHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	vw, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toVideoResponse(vw.Video, vw.Owner))
}

// CreateVideo は認証済みユーザーの動画を作成する。
// POST /api/videos
func (h *VideoHandler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	var req createVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	input := model.VideoInput{
		Title:        req.Title,
		Description:  req.Description,
		Caption:      req.Caption,
		VideoURL:     req.VideoURL,
		ThumbnailURL: req.ThumbnailURL,
		Controls:     req.Controls,
	}
	if req.Transformation != nil {
		input.Transformation = &model.Transformation{
			Height:  req.Transformation.Height,
			Width:   req.Transformation.Width,
			Quality: req.Transformation.Quality,
		}
	}

	v, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordVideoCreated()
	writeJSON(w, http.StatusCreated, toVideoResponse(v, nil))
}

// Like は動画にいいねを追加する。いいね済みでも成功を返す。
// POST /api/videos/{id}/like
func (h *VideoHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, metrics.LikeAdd, h.service.Like)
}

// Unlike は動画のいいねを取り消す。未いいねでも成功を返す。
// DELETE /api/videos/{id}/like
func (h *VideoHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, metrics.LikeRemove, h.service.Unlike)
}

func (h *VideoHandler) changeLike(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	apply func(ctx context.Context, videoID, userID string) ([]string, error),
) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	likes, err := apply(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordLike(action)
	writeJSON(w, http.StatusOK, likesResponse{Likes: nonNil(likes)})
}

// ListComments はコメントを投稿順に返す。
// GET /api/videos/{id}/comments
func (h *VideoHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c.Comment, c.Author))
	}
	writeJSON(w, http.StatusOK, commentsResponse{Comments: resp})
}

// AddComment はコメントを追記する。
// POST /api/videos/{id}/comments
func (h *VideoHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	var req addCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	created, err := h.service.AddComment(r.Context(), chi.URLParam(r, "id"), userID, req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordComment()
	writeJSON(w, http.StatusCreated, commentCreatedResponse{
		Comment: toCommentResponse(created.Comment, created.Author),
	})
}

// --- ヘルパー関数 ---

func toVideoResponse(v *model.Video, owner *model.Author) videoResponse {
	comments := make([]commentResponse, 0, len(v.Comments))
	for _, c := range v.Comments {
		comments = append(comments, toCommentResponse(c, nil))
	}
	return videoResponse{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		Caption:      v.Caption,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		Controls:     v.Controls,
		Transformation: transformationBody{
			Height:  v.Transformation.Height,
			Width:   v.Transformation.Width,
			Quality: v.Transformation.Quality,
		},
		UserID:    v.UserID,
		Owner:     owner,
		Likes:     nonNil(v.Likes),
		Comments:  comments,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func toCommentResponse(c model.Comment, author *model.Author) commentResponse {
	return commentResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		Author:    author,
	}
}

// nonNil はnilスライスを空スライスに置き換え、JSONで [] を返すようにする。
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
