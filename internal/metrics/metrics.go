// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// いいね操作のラベル値。
const (
	LikeAdd    = "like"
	LikeRemove = "unlike"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアとハンドラーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordRegistration()
	RecordLogin(result string)
	RecordVideoCreated()
	RecordLike(action string)
	RecordComment()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	registrations prometheus.Counter
	logins        *prometheus.CounterVec
	videosCreated prometheus.Counter
	likes         *prometheus.CounterVec
	comments      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipstream_http_requests_total",
			Help: "HTTPリクエスト数（ステータスコード別）",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipstream_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipstream_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipstream_logins_total",
			Help: "ログイン試行数（結果別）",
		}, []string{"result"}),
		videosCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipstream_videos_created_total",
			Help: "作成された動画の合計数",
		}),
		likes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipstream_likes_total",
			Help: "いいね操作数（操作別）",
		}, []string{"action"}),
		comments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipstream_comments_total",
			Help: "投稿されたコメントの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.registrations,
		c.logins,
		c.videosCreated,
		c.likes,
		c.comments,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
// routeにはchiのルートパターンを渡し、IDごとにラベルが増えないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordVideoCreated は動画作成を記録する。
func (c *Collector) RecordVideoCreated() {
	c.videosCreated.Inc()
}

// RecordLike はいいね・いいね取り消しを記録する。
func (c *Collector) RecordLike(action string) {
	c.likes.WithLabelValues(action).Inc()
}

// RecordComment はコメント投稿を記録する。
func (c *Collector) RecordComment() {
	c.comments.Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordRegistration()                                  {}
func (Nop) RecordLogin(string)                                   {}
func (Nop) RecordVideoCreated()                                  {}
func (Nop) RecordLike(string)                                    {}
func (Nop) RecordComment()                                       {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
