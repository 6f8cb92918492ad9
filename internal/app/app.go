package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/clipstream/internal/auth"
	"github.com/hitoshi/clipstream/internal/config"
	"github.com/hitoshi/clipstream/internal/database"
	"github.com/hitoshi/clipstream/internal/handler"
	"github.com/hitoshi/clipstream/internal/logger"
	"github.com/hitoshi/clipstream/internal/metrics"
	"github.com/hitoshi/clipstream/internal/middleware"
	"github.com/hitoshi/clipstream/internal/repository"
	"github.com/hitoshi/clipstream/internal/security"
	"github.com/hitoshi/clipstream/internal/upload"
	"github.com/hitoshi/clipstream/internal/video"
)

// mediaProbeTimeout は動画URLの到達確認に使うタイムアウト。
const mediaProbeTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// PostgreSQLへの接続を確認し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// MongoDBへの接続は最初に必要になった時点で確立する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	mongoConnector, err := database.NewMongoConnector(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("failed to configure mongodb: %w", err)
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	videoRepo := repository.NewMongoVideoRepo(mongoConnector)

	// 3. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(cfg.TokenSecret, cfg.SessionDuration())
	authService := auth.NewService(userRepo, auth.NewPasswordHasher(cfg.BcryptCost))

	videoService := video.NewService(
		videoRepo, userRepo,
		security.NewMediaURLGuard(mediaProbeTimeout),
		video.Options{VerifyMediaURLs: cfg.VerifyMediaURLs},
	)

	uploadService, err := upload.NewService(ctx, upload.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3PublicKey,
		SecretKey:     cfg.S3PrivateKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.MediaURLEndpoint,
		TTL:           cfg.UploadURLTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize upload service: %w", err)
	}

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SecurityHeaders: middleware.SecurityHeadersConfig{HSTS: cfg.CookieSecure},
		Logger:          slog.Default(),

		Metrics:         collector,
		MetricsGatherer: registry,

		AuthService: authService,
		TokenIssuer: tokens,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		VideoService: videoService,
		FeedSource:   videoService,
		FeedConfig:   handler.FeedConfig{BaseURL: cfg.BaseURL},

		UploadAuthorizer: uploadService,

		HealthChecks: healthChecks(db, mongoConnector),
	}

	server := newHTTPServer(cfg.ServerPort, handler.NewRouter(deps))

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
		slog.Info("shutting down API server...")
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := mongoConnector.Disconnect(shutdownCtx); err != nil {
		slog.Warn("mongodb disconnect failed", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newHTTPServer はタイムアウトを設定したhttp.Serverを生成する。
func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// mongoPinger はMongoDBの接続確認に必要なインターフェース。
type mongoPinger interface {
	Ping(ctx context.Context) error
}

type connectorPinger struct {
	connector *database.MongoConnector
}

func (p connectorPinger) Ping(ctx context.Context) error {
	db, err := p.connector.Database(ctx)
	if err != nil {
		return err
	}
	return db.Client().Ping(ctx, nil)
}

// healthChecks は /health で確認する依存先の一覧を返す。
func healthChecks(db *sql.DB, connector *database.MongoConnector) map[string]handler.HealthCheck {
	return buildHealthChecks(db.PingContext, connectorPinger{connector: connector})
}

func buildHealthChecks(pingPostgres func(context.Context) error, mongo mongoPinger) map[string]handler.HealthCheck {
	return map[string]handler.HealthCheck{
		"postgres": handler.HealthCheck(pingPostgres),
		"mongodb":  mongo.Ping,
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
