package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/clipstream/internal/model"
)

// Claims はセッショントークンに埋め込むクレーム。
// subjectにユーザーIDを格納する。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenIssuer はHS256で署名したステートレスなセッショントークンを発行・検証する。
// トークンはサーバー側に保存せず、有効期限まで失効させられない。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue はidentityを埋め込んだトークンと有効期限を返す。
func (i *TokenIssuer) Issue(identity *model.Identity) (string, time.Time, error) {
	if identity == nil || identity.UserID == "" {
		return "", time.Time{}, errors.New("identity is required")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: identity.Email,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンの署名と有効期限を検証し、埋め込まれたidentityを返す。
// 不正・期限切れ・未指定のいずれの場合もUNAUTHORIZEDのAPIErrorを返し、理由は区別しない。
func (i *TokenIssuer) Verify(tokenString string) (*model.Identity, error) {
	if tokenString == "" {
		return nil, model.NewUnauthorizedError()
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, model.NewUnauthorizedError()
	}
	if claims.Subject == "" {
		return nil, model.NewUnauthorizedError()
	}

	return &model.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
