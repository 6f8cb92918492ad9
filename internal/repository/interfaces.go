// Package repository はデータ永続化のインターフェースと実装を提供する。
//
// ユーザーはPostgreSQL、動画はMongoDBに保存する。
// テストとローカル実行向けにインメモリ実装も用意する。
package repository

import (
	"context"

	"github.com/hitoshi/clipstream/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが登録済みの場合はEMAIL_TAKENのAPIErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDs は複数IDのユーザーをまとめて取得する。
	// 見つからないIDは結果のマップに含まれない。
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
}

// VideoRepository は動画データの永続化インターフェース。
// いいねとコメントは動画ドキュメント単位でアトミックに更新する。
// 存在しないIDや形式不正なIDは「見つからない」として扱う。
type VideoRepository interface {
	// Create は動画を作成し、採番したIDをvideo.IDに設定する。
	Create(ctx context.Context, video *model.Video) error

	// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Video, error)

	// List は全動画を作成順に返す。
	List(ctx context.Context) ([]*model.Video, error)

	// ListRecent は作成日時の新しい順に最大limit件の動画を返す。
	ListRecent(ctx context.Context, limit int) ([]*model.Video, error)

	// AddLike はユーザーのいいねを追加し、更新後の動画を返す。
	// 既にいいね済みの場合は何も変更しない。見つからない場合はnilを返す。
	AddLike(ctx context.Context, videoID, userID string) (*model.Video, error)

	// RemoveLike はユーザーのいいねを取り消し、更新後の動画を返す。
	// 見つからない場合はnilを返す。
	RemoveLike(ctx context.Context, videoID, userID string) (*model.Video, error)

	// AddComment はコメントを追記し、採番したIDをcomment.IDに設定する。
	// 動画が見つからない場合はfalseを返す。
	AddComment(ctx context.Context, videoID string, comment *model.Comment) (bool, error)

	// ListComments は動画のコメントを投稿順に返す。
	// 動画が見つからない場合はfalseを返す。
	ListComments(ctx context.Context, videoID string) ([]model.Comment, bool, error)
}
