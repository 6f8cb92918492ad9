package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/clipstream/internal/model"
)

// MemoryUserRepo はプロセス内メモリにユーザーを保持するリポジトリ。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	byEmail map[string]string
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

// Create はユーザーを保存する。メールアドレスが登録済みの場合はEMAIL_TAKENエラーを返す。
func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return model.NewEmailTakenError()
	}
	copied := *user
	r.users[user.ID] = &copied
	r.byEmail[user.Email] = user.ID
	return nil
}

// FindByEmail は正規化済みのメールアドレスでユーザーを検索する。見つからない場合はnil, nilを返す。
func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	copied := *r.users[id]
	return &copied, nil
}

// FindByID はIDでユーザーを検索する。見つからない場合はnil, nilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// FindByIDs は複数IDのユーザーをIDをキーとするマップで返す。存在しないIDは含まれない。
func (r *MemoryUserRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			copied := *u
			result[id] = &copied
		}
	}
	return result, nil
}

var _ UserRepository = (*MemoryUserRepo)(nil)
