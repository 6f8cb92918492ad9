// Package video は動画の作成・取得と、いいね・コメントの操作を提供する。
package video

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/clipstream/internal/model"
	"github.com/hitoshi/clipstream/internal/repository"
	"github.com/hitoshi/clipstream/internal/security"
)

// 入力値の上限（文字数）。
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxCommentLength     = 2000
	MaxDimension         = 4096
)

// DefaultFeedLimit はRSSフィードに含める動画数の既定値。
const DefaultFeedLimit = 20

// VideoWithOwner は動画と投稿者の公開プロジェクションの組。
type VideoWithOwner struct {
	Video *model.Video
	Owner *model.Author
}

// CommentWithAuthor はコメントと投稿者の公開プロジェクションの組。
// 投稿者が見つからない場合、AuthorはIDのみを持つ。
type CommentWithAuthor struct {
	Comment model.Comment
	Author  *model.Author
}

// Options はServiceの動作設定。
type Options struct {
	// VerifyMediaURLs が真の場合、作成時に動画とサムネイルのURLへ到達確認を行う。
	VerifyMediaURLs bool
}

// Service は動画に関するビジネスロジックを提供する。
type Service struct {
	videos repository.VideoRepository
	users  repository.UserRepository
	guard  security.MediaURLGuard
	opts   Options
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	videos repository.VideoRepository,
	users repository.UserRepository,
	guard security.MediaURLGuard,
	opts Options,
) *Service {
	return &Service{
		videos: videos,
		users:  users,
		guard:  guard,
		opts:   opts,
		now:    time.Now,
	}
}

// Create は認証済みユーザーの動画を作成する。
// likesとcommentsは空で作成し、未指定のcontrolsとtransformationには既定値を入れる。
// テキストは前後の空白のみ除去し、そのまま保存する。
func (s *Service) Create(ctx context.Context, ownerID string, input model.VideoInput) (*model.Video, error) {
	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	if owner == nil {
		return nil, model.NewUnauthorizedError()
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	caption := strings.TrimSpace(input.Caption)

	switch {
	case title == "":
		return nil, model.NewInvalidInputError("Title is required")
	case description == "":
		return nil, model.NewInvalidInputError("Description is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return nil, model.NewInvalidInputError(fmt.Sprintf("Title must be at most %d characters", MaxTitleLength))
	case utf8.RuneCountInString(description) > MaxDescriptionLength:
		return nil, model.NewInvalidInputError(fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength))
	case utf8.RuneCountInString(caption) > MaxDescriptionLength:
		return nil, model.NewInvalidInputError(fmt.Sprintf("Caption must be at most %d characters", MaxDescriptionLength))
	}
	if caption == "" {
		caption = description
	}

	videoURL := strings.TrimSpace(input.VideoURL)
	thumbnailURL := strings.TrimSpace(input.ThumbnailURL)
	if err := s.checkMediaURL(ctx, "Video URL", videoURL); err != nil {
		return nil, err
	}
	if err := s.checkMediaURL(ctx, "Thumbnail URL", thumbnailURL); err != nil {
		return nil, err
	}

	transformation, err := normalizeTransformation(input.Transformation)
	if err != nil {
		return nil, err
	}

	controls := true
	if input.Controls != nil {
		controls = *input.Controls
	}

	now := s.now().UTC()
	v := &model.Video{
		Title:          title,
		Description:    description,
		Caption:        caption,
		VideoURL:       videoURL,
		ThumbnailURL:   thumbnailURL,
		Controls:       controls,
		Transformation: transformation,
		UserID:         owner.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.videos.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	slog.Info("video created",
		slog.String("video_id", v.ID),
		slog.String("user_id", owner.ID),
	)
	return v, nil
}

// checkMediaURL はURLの形式を検証し、設定に応じて到達確認を行う。
func (s *Service) checkMediaURL(ctx context.Context, field, rawURL string) error {
	if rawURL == "" {
		return model.NewInvalidInputError(field + " is required")
	}
	if err := s.guard.ValidateURL(rawURL); err != nil {
		slog.Debug("media url rejected",
			slog.String("field", field),
			slog.String("reason", err.Error()),
		)
		return model.NewInvalidInputError(field + " must be a public http or https URL")
	}
	if !s.opts.VerifyMediaURLs {
		return nil
	}
	if err := s.guard.Probe(ctx, rawURL); err != nil {
		slog.Warn("media url probe failed",
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
		return model.NewInvalidInputError(field + " is not reachable")
	}
	return nil
}

// normalizeTransformation は未指定の値に既定値を入れ、範囲を検証する。
func normalizeTransformation(t *model.Transformation) (model.Transformation, error) {
	out := model.Transformation{
		Height: model.DefaultVideoHeight,
		Width:  model.DefaultVideoWidth,
	}
	if t == nil {
		return out, nil
	}

	if t.Height < 0 || t.Height > MaxDimension || t.Width < 0 || t.Width > MaxDimension {
		return out, model.NewInvalidInputError(
			fmt.Sprintf("Transformation height and width must be between 1 and %d", MaxDimension))
	}
	if t.Quality < 0 || t.Quality > 100 {
		return out, model.NewInvalidInputError("Transformation quality must be between 1 and 100")
	}

	if t.Height > 0 {
		out.Height = t.Height
	}
	if t.Width > 0 {
		out.Width = t.Width
	}
	out.Quality = t.Quality
	return out, nil
}

// Get は動画を投稿者のプロジェクション付きで返す。
func (s *Service) Get(ctx context.Context, id string) (*VideoWithOwner, error) {
	v, err := s.videos.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find video: %w", err)
	}
	if v == nil {
		return nil, model.NewVideoNotFoundError()
	}

	authors, err := s.authors(ctx, []string{v.UserID})
	if err != nil {
		return nil, err
	}
	return &VideoWithOwner{Video: v, Owner: authors[v.UserID]}, nil
}

// List は全動画を作成順に返す。ページングは行わない。
func (s *Service) List(ctx context.Context) ([]*model.Video, error) {
	videos, err := s.videos.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

// Like はいいねを追加し、更新後のいいね一覧を返す。いいね済みの場合は変更しない。
func (s *Service) Like(ctx context.Context, videoID, userID string) ([]string, error) {
	v, err := s.videos.AddLike(ctx, videoID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to add like: %w", err)
	}
	if v == nil {
		return nil, model.NewVideoNotFoundError()
	}
	return v.Likes, nil
}

// Unlike はいいねを取り消し、更新後のいいね一覧を返す。未いいねの場合は変更しない。
func (s *Service) Unlike(ctx context.Context, videoID, userID string) ([]string, error) {
	v, err := s.videos.RemoveLike(ctx, videoID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove like: %w", err)
	}
	if v == nil {
		return nil, model.NewVideoNotFoundError()
	}
	return v.Likes, nil
}

// AddComment はコメントを追記する。
// 前後の空白を除いた本文が空の場合はINVALID_INPUTを返し、何も保存しない。
func (s *Service) AddComment(ctx context.Context, videoID, userID, content string) (*CommentWithAuthor, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.NewInvalidInputError("Comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, model.NewInvalidInputError(
			fmt.Sprintf("Comment must be at most %d characters", MaxCommentLength))
	}

	comment := &model.Comment{
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	found, err := s.videos.AddComment(ctx, videoID, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	if !found {
		return nil, model.NewVideoNotFoundError()
	}

	authors, err := s.authors(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	return &CommentWithAuthor{Comment: *comment, Author: authors[userID]}, nil
}

// ListComments はコメントを投稿順に、投稿者のプロジェクション付きで返す。
func (s *Service) ListComments(ctx context.Context, videoID string) ([]CommentWithAuthor, error) {
	comments, found, err := s.videos.ListComments(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if !found {
		return nil, model.NewVideoNotFoundError()
	}

	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.UserID)
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]CommentWithAuthor, 0, len(comments))
	for _, c := range comments {
		result = append(result, CommentWithAuthor{Comment: c, Author: authors[c.UserID]})
	}
	return result, nil
}

// RecentFeed はRSSフィード用に新しい順の動画を投稿者付きで返す。
func (s *Service) RecentFeed(ctx context.Context, limit int) ([]VideoWithOwner, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	videos, err := s.videos.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent videos: %w", err)
	}

	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		ids = append(ids, v.UserID)
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]VideoWithOwner, 0, len(videos))
	for _, v := range videos {
		result = append(result, VideoWithOwner{Video: v, Owner: authors[v.UserID]})
	}
	return result, nil
}

// authors はユーザーIDから公開プロジェクションを引く。
// 見つからないユーザーはIDのみのプロジェクションにする。
func (s *Service) authors(ctx context.Context, ids []string) (map[string]*model.Author, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	users, err := s.users.FindByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to find authors: %w", err)
	}

	authors := make(map[string]*model.Author, len(unique))
	for _, id := range unique {
		if u, ok := users[id]; ok {
			authors[id] = model.AuthorOf(u)
		} else {
			authors[id] = &model.Author{ID: id}
		}
	}
	return authors, nil
}
