// Package upload はクライアントがオブジェクトストレージへ直接アップロードするための
// 署名付きURLを発行する。
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/hitoshi/clipstream/internal/model"
)

// テストで差し替えるためのフック。
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// extPattern はオブジェクトキーに付与する拡張子として許可する形式。
var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Config はオブジェクトストレージの接続設定。
type Config struct {
	Endpoint      string // 空の場合はAWSのデフォルトエンドポイント
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string // アップロード後のファイルを配信するURLのベース
	TTL           time.Duration
}

// Authorization はクライアントに返すアップロード許可。
type Authorization struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	FileURL   string            `json:"fileUrl"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Service は署名付きPUT URLを発行する。
type Service struct {
	presign *s3.PresignClient
	cfg     Config
	now     func() time.Time
}

// NewService はServiceを生成する。
// 認証情報は静的に与え、エンドポイント指定時はMinIO向けにパス形式でアクセスする。
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Service{
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Authorize はユーザー用のオブジェクトキーを採番し、署名付きPUT URLを返す。
// contentTypeはvideo/*またはimage/*のみ受け付け、空の場合は署名に含めない。
func (s *Service) Authorize(ctx context.Context, userID, fileName, contentType string) (*Authorization, error) {
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if contentType != "" && !strings.HasPrefix(contentType, "video/") && !strings.HasPrefix(contentType, "image/") {
		return nil, model.NewInvalidInputError("Only video and image uploads are allowed")
	}

	key := objectKey(userID, fileName)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	expiresAt := s.now().Add(s.cfg.TTL).UTC()
	req, err := presignPutObject(s.presign, ctx, in, s3.WithPresignExpires(s.cfg.TTL))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}

	slog.Debug("upload authorized",
		slog.String("user_id", userID),
		slog.String("key", key),
	)

	return &Authorization{
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   headers,
		FileURL:   s.cfg.PublicBaseURL + "/" + key,
		Key:       key,
		ExpiresAt: expiresAt,
	}, nil
}

// objectKey は "videos/{userID}/{uuid}{ext}" 形式のキーを返す。
// 拡張子が許可形式でない場合は付与しない。
func objectKey(userID, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(fileName)))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("videos/%s/%s%s", userID, uuid.New().String(), ext)
}
