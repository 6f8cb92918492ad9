package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/clipstream/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Session
	TokenSecret   string
	SessionMaxAge int
	BcryptCost    int

	// Object storage
	S3Endpoint       string
	S3Region         string
	S3PublicKey      string
	S3PrivateKey     string
	S3Bucket         string
	MediaURLEndpoint string
	UploadURLTTL     time.Duration
	VerifyMediaURLs  bool

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は不足分をまとめた*model.ConfigurationErrorを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.MongoURI = required("MONGODB_URI")
	cfg.TokenSecret = required("TOKEN_SECRET")
	cfg.BaseURL = required("BASE_URL")
	cfg.S3PublicKey = required("S3_PUBLIC_KEY")
	cfg.S3PrivateKey = required("S3_PRIVATE_KEY")
	cfg.S3Bucket = required("S3_BUCKET")
	cfg.MediaURLEndpoint = strings.TrimRight(required("MEDIA_URL_ENDPOINT"), "/")

	if len(missing) > 0 {
		return nil, &model.ConfigurationError{Missing: missing}
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGODB_DATABASE", "clipstream")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 30*24*60*60)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.UploadURLTTL = getEnvDuration("UPLOAD_URL_TTL", 15*time.Minute)
	cfg.VerifyMediaURLs = getEnvBool("VERIFY_MEDIA_URLS", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// SessionDuration はセッショントークンの有効期間を返す。
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
