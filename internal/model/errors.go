// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError はハンドラーがHTTPレスポンスに変換するドメインエラーを表す。
// Messageはそのままクライアントに返すため、内部情報を含めてはならない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, video, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeVideoNotFound     = "VIDEO_NOT_FOUND"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeEmailTaken        = "EMAIL_TAKEN"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeCSRFInvalid       = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// NewUnauthorizedError は未認証エラーを生成する。
// セッションなしと期限切れを区別しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
	}
}

// NewInvalidCredentialError はパスワード不一致エラーを生成する。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "Invalid email or password",
		Category: "auth",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
	}
}

// NewVideoNotFoundError は動画未検出エラーを生成する。
func NewVideoNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeVideoNotFound,
		Message:  "Video not found",
		Category: "video",
	}
}

// NewInvalidInputError は入力値検証エラーを生成する。
func NewInvalidInputError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: "validation",
	}
}

// NewEmailTakenError は登録済みメールアドレスでの再登録エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Email is already registered",
		Category: "auth",
	}
}

// NewInternalError はクライアントに返す汎用の内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed",
		Category: "auth",
	}
}

// NewRateLimitedError はレートリミット超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
	}
}

// HasCode はerrがAPIErrorであり、指定コードを持つかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ConfigurationError は起動時に必須設定が欠けていることを表す。リトライしない。
type ConfigurationError struct {
	Missing []string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("required configuration is not set: %s", strings.Join(e.Missing, ", "))
}

// ConnectionError はデータベースへの接続に失敗したことを表す。
// 自動リトライは行わず、次の呼び出し元が再接続を試みる。
type ConnectionError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
