// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// パスワードはbcryptハッシュのみを保持し、平文は保持しない。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はセッショントークンから復元される認証済みユーザーを表す。
type Identity struct {
	UserID string
	Email  string
}

// Author はレスポンスに埋め込むユーザーの公開プロジェクション。
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthorOf はUserから公開プロジェクションを生成する。
func AuthorOf(u *User) *Author {
	if u == nil {
		return nil
	}
	return &Author{ID: u.ID, Name: u.Name, Email: u.Email}
}
