// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/clipstream/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	identityContextKey = contextKey("identity")
	// bearerContextKey はAuthorizationヘッダーで認証されたかを格納するためのキー。
	bearerContextKey = contextKey("bearer")
)

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// auth.TokenIssuerが実装する。
type TokenVerifier interface {
	Verify(token string) (*model.Identity, error)
}

// NewSessionMiddleware はAuthorizationヘッダーまたはCookieからセッショントークンを読み取り、
// 署名と有効期限を検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// トークンの欠落・改ざん・期限切れはすべて同じ401を返す。
func NewSessionMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer := tokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil || identity == nil {
				slog.Debug("session token rejected",
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			noteSession(r.Context(), identity.UserID, bearer)

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, bearerContextKey, bearer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenFromRequest はBearerヘッダーを優先してトークンを取り出す。
// 2番目の戻り値はBearerヘッダー由来であるかを表す。
func tokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)); token != "" {
			return token, true
		}
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	return cookie.Value, false
}

// IdentityFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UserID, nil
}

// ContextWithIdentity はコンテキストに認証済みユーザーを注入する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithIdentity(ctx, &model.Identity{UserID: userID})
}

// IsBearerAuthenticated はリクエストがAuthorizationヘッダーで認証されたかを返す。
func IsBearerAuthenticated(ctx context.Context) bool {
	bearer, _ := ctx.Value(bearerContextKey).(bool)
	return bearer
}
