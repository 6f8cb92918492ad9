package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hitoshi/clipstream/internal/model"
)

// MemoryVideoRepo はプロセス内メモリに動画を保持するリポジトリ。
// IDはMongoDB実装と同じObjectIDの16進表現で採番する。
type MemoryVideoRepo struct {
	mu     sync.RWMutex
	videos map[string]*model.Video
	order  []string
}

// NewMemoryVideoRepo はMemoryVideoRepoを生成する。
func NewMemoryVideoRepo() *MemoryVideoRepo {
	return &MemoryVideoRepo{
		videos: make(map[string]*model.Video),
	}
}

// cloneVideo は呼び出し元との共有を避けるためスライスごと複製する。
func cloneVideo(v *model.Video) *model.Video {
	copied := *v
	copied.Likes = append([]string{}, v.Likes...)
	copied.Comments = append([]model.Comment{}, v.Comments...)
	return &copied
}

// Create は動画を保存し、採番したIDをvideoに設定する。
func (r *MemoryVideoRepo) Create(ctx context.Context, video *model.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	video.ID = primitive.NewObjectID().Hex()
	video.Likes = []string{}
	video.Comments = []model.Comment{}
	r.videos[video.ID] = cloneVideo(video)
	r.order = append(r.order, video.ID)
	return nil
}

// FindByID はIDで動画を検索する。見つからない場合はnil, nilを返す。
func (r *MemoryVideoRepo) FindByID(ctx context.Context, id string) (*model.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, nil
	}
	return cloneVideo(v), nil
}

// List は全動画を作成順に返す。
func (r *MemoryVideoRepo) List(ctx context.Context) ([]*model.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := make([]*model.Video, 0, len(r.order))
	for _, id := range r.order {
		videos = append(videos, cloneVideo(r.videos[id]))
	}
	return videos, nil
}

// ListRecent は作成日時の新しい順に最大limit件を返す。limitが負の場合は全件。
func (r *MemoryVideoRepo) ListRecent(ctx context.Context, limit int) ([]*model.Video, error) {
	videos, _ := r.List(ctx)
	// 作成日時が同じ場合は後から作成したものを先にする
	for i, j := 0, len(videos)-1; i < j; i, j = i+1, j-1 {
		videos[i], videos[j] = videos[j], videos[i]
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	if limit >= 0 && len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

// AddLike はユーザーのいいねを追加する。既にいいね済みの場合は何も変更しない。
func (r *MemoryVideoRepo) AddLike(ctx context.Context, videoID, userID string) (*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[videoID]
	if !ok {
		return nil, nil
	}
	if !v.HasLike(userID) {
		v.Likes = append(v.Likes, userID)
		v.UpdatedAt = time.Now().UTC()
	}
	return cloneVideo(v), nil
}

// RemoveLike はユーザーのいいねを取り消す。いいねしていない場合は何も変更しない。
func (r *MemoryVideoRepo) RemoveLike(ctx context.Context, videoID, userID string) (*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[videoID]
	if !ok {
		return nil, nil
	}
	likes := make([]string, 0, len(v.Likes))
	for _, id := range v.Likes {
		if id != userID {
			likes = append(likes, id)
		}
	}
	if len(likes) != len(v.Likes) {
		v.Likes = likes
		v.UpdatedAt = time.Now().UTC()
	}
	return cloneVideo(v), nil
}

// AddComment はコメントを追記し、採番したIDをcommentに設定する。
// 動画が存在しない場合はfalseを返す。
func (r *MemoryVideoRepo) AddComment(ctx context.Context, videoID string, comment *model.Comment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[videoID]
	if !ok {
		return false, nil
	}
	comment.ID = primitive.NewObjectID().Hex()
	v.Comments = append(v.Comments, *comment)
	v.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ListComments は動画のコメントを投稿順に返す。
func (r *MemoryVideoRepo) ListComments(ctx context.Context, videoID string) ([]model.Comment, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[videoID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.Comment{}, v.Comments...), true, nil
}

var _ VideoRepository = (*MemoryVideoRepo)(nil)
