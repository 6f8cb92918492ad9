// Package model はドメインモデルを定義する。
package model

import "time"

// 動画のデフォルト表示サイズ。
const (
	DefaultVideoHeight = 1080
	DefaultVideoWidth  = 1920
)

// Transformation は動画配信時の変換パラメータを表す。
// Qualityは0の場合未指定として扱う。
type Transformation struct {
	Height  int
	Width   int
	Quality int
}

// Video はアップロードされたショート動画を表す。
// likesとcommentsは動画ドキュメントに埋め込まれる。
type Video struct {
	ID             string
	Title          string
	Description    string
	Caption        string
	VideoURL       string
	ThumbnailURL   string
	Controls       bool
	Transformation Transformation
	UserID         string
	Likes          []string
	Comments       []Comment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Comment は動画に対するコメントを表す。追記のみで編集・削除はしない。
type Comment struct {
	ID        string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// VideoInput は動画作成時にクライアントから受け取る値。
type VideoInput struct {
	Title          string
	Description    string
	Caption        string
	VideoURL       string
	ThumbnailURL   string
	Controls       *bool
	Transformation *Transformation
}

// HasLike は指定ユーザーがいいね済みかを返す。
func (v *Video) HasLike(userID string) bool {
	for _, id := range v.Likes {
		if id == userID {
			return true
		}
	}
	return false
}
