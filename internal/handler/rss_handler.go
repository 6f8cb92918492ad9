package handler

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/clipstream/internal/security"
	"github.com/hitoshi/clipstream/internal/video"
)

// RecentVideoSource はRSSフィードに載せる動画の取得に必要なインターフェース。
type RecentVideoSource interface {
	RecentFeed(ctx context.Context, limit int) ([]video.VideoWithOwner, error)
}

// FeedConfig はRSSフィードのチャンネル設定。
type FeedConfig struct {
	Title   string
	BaseURL string // 各動画ページへのリンクのベース
	Limit   int
}

// FeedHandler は新着動画のRSS 2.0フィードを配信するHTTPハンドラー。
type FeedHandler struct {
	source RecentVideoSource
	config FeedConfig
	// フィードリーダーはdescriptionをHTMLとして表示するため、タグを除去してから載せる
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(source RecentVideoSource, config FeedConfig) *FeedHandler {
	if config.Title == "" {
		config.Title = "clipstream"
	}
	if config.Limit <= 0 {
		config.Limit = video.DefaultFeedLimit
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &FeedHandler{
		source:    source,
		config:    config,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
	}
}

// Feed は新しい順の動画をRSS 2.0形式で返す。
// GET /api/feed.xml
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	videos, err := h.source.RecentFeed(r.Context(), h.config.Limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	feed := &feeds.Feed{
		Title:       h.config.Title,
		Link:        &feeds.Link{Href: h.config.BaseURL + "/"},
		Description: fmt.Sprintf("Latest videos on %s", h.config.Title),
		Updated:     h.now().UTC(),
		Items:       make([]*feeds.Item, 0, len(videos)),
	}

	for _, vw := range videos {
		v := vw.Video
		link := h.config.BaseURL + "/videos/" + v.ID
		item := &feeds.Item{
			Id:          link,
			Title:       h.sanitizer.Sanitize(v.Title),
			Link:        &feeds.Link{Href: link},
			Description: h.sanitizer.Sanitize(v.Description),
			Created:     v.CreatedAt.UTC(),
		}
		if vw.Owner != nil && vw.Owner.Email != "" {
			item.Author = &feeds.Author{
				Name:  fmt.Sprintf("%s (%s)", vw.Owner.Email, vw.Owner.Name),
				Email: vw.Owner.Email,
			}
		}
		if v.VideoURL != "" {
			// 長さは不明なため0とする
			item.Enclosure = &feeds.Enclosure{Url: v.VideoURL, Length: "0", Type: videoMIMEType(v.VideoURL)}
		}
		feed.Items = append(feed.Items, item)
	}

	body, err := feed.ToRss()
	if err != nil {
		slog.Error("failed to encode rss feed", slog.String("error", err.Error()))
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Debug("failed to write rss feed", slog.String("error", err.Error()))
	}
}

// videoMIMEType は動画URLの拡張子からMIMEタイプを推定する。
func videoMIMEType(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(p))); strings.HasPrefix(t, "video/") {
		return t
	}
	return "video/mp4"
}
