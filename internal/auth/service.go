// Package auth はメールアドレスとパスワードによる認証と、
// ステートレスなセッショントークンの発行・検証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/clipstream/internal/model"
	"github.com/hitoshi/clipstream/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// MaxPasswordBytes はbcryptが受け付けるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   *PasswordHasher
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher *PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		now:      time.Now,
	}
}

// NormalizeEmail は比較用にメールアドレスを前後空白除去・小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register は新規ユーザーを登録する。
// nameが空の場合はメールアドレスのローカル部を使用する。
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" || password == "" {
		return nil, model.NewInvalidInputError("Email and password are required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.NewInvalidInputError("Invalid email address")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, model.NewInvalidInputError(
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return nil, model.NewInvalidInputError(
			fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes))
	}
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// 同時登録の競合はリポジトリの一意制約でEMAIL_TAKENになる
	if err := s.userRepo.Create(ctx, user); err != nil {
		if model.HasCode(err, model.ErrCodeEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// Authenticate はメールアドレスとパスワードを照合し、identityを返す。
// ユーザーが存在しない場合はUSER_NOT_FOUND、パスワード不一致の場合はINVALID_CREDENTIALを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewInvalidInputError("Email and password are required")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		s.hasher.CompareDummy(password)
		return nil, model.NewUserNotFoundError()
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewInvalidCredentialError()
	}

	return &model.Identity{UserID: user.ID, Email: user.Email}, nil
}

// CurrentUser はトークンから復元したユーザーIDのユーザーを返す。
// トークン発行後にユーザーが存在しなくなった場合はUNAUTHORIZEDを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}
