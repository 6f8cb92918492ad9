package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/clipstream/internal/metrics"
	"github.com/hitoshi/clipstream/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	SecurityHeaders   middleware.SecurityHeadersConfig
	Logger            *slog.Logger

	// メトリクス。Gathererがnilの場合は /metrics を公開しない
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	TokenIssuer TokenIssuerInterface
	AuthConfig  AuthHandlerConfig

	// 動画
	VideoService VideoServiceInterface
	FeedSource   RecentVideoSource
	FeedConfig   FeedConfig

	// アップロード
	UploadAuthorizer UploadAuthorizer

	// ヘルスチェック
	HealthChecks map[string]HealthCheck
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → Metrics → SecurityHeaders → CORS
//	  認証必須ルート: → Session → RateLimit(General) → CSRF
//	  登録・ログイン: → RateLimit(Auth)
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.TokenIssuer, collector, deps.AuthConfig)
	videoHandler := NewVideoHandler(deps.VideoService, collector)
	uploadHandler := NewUploadHandler(deps.UploadAuthorizer)
	feedHandler := NewFeedHandler(deps.FeedSource, deps.FeedConfig)
	healthHandler := NewHealthHandler(deps.HealthChecks)

	sessionMW := middleware.NewSessionMiddleware(deps.TokenVerifier)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/api", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		r.Get("/feed.xml", feedHandler.Feed)

		r.Get("/videos", videoHandler.ListVideos)
		r.Get("/videos/{id}", videoHandler.GetVideo)
		r.Get("/videos/{id}/comments", videoHandler.ListComments)

		r.Route("/auth", func(r chi.Router) {
			// 登録・ログインはクライアントIP単位でレート制限する
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
			})
			r.Post("/logout", authHandler.Logout)

			r.With(sessionMW, deps.RateLimiter.GeneralMiddleware()).Get("/me", authHandler.Me)
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General) → CSRF
		r.Group(func(r chi.Router) {
			r.Use(sessionMW)
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Post("/videos", videoHandler.CreateVideo)
			r.Post("/videos/{id}/like", videoHandler.Like)
			r.Delete("/videos/{id}/like", videoHandler.Unlike)
			r.Post("/videos/{id}/comments", videoHandler.AddComment)

			r.Get("/upload-auth", uploadHandler.Authorize)
		})
	})

	return r
}
