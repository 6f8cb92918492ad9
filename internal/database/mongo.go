package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/clipstream/internal/model"
)

const (
	mongoMaxPoolSize    = 10
	mongoConnectTimeout = 10 * time.Second
)

// dialFunc はMongoDBへ接続してデータベースハンドルを返す。テストで差し替える。
type dialFunc func(ctx context.Context, uri, dbName string) (*mongo.Database, error)

// MongoConnector は動画ドキュメントを保持するMongoDBへの接続を遅延確立し、
// プロセス内で1つのハンドルを共有する。
//
// 同時に呼び出された場合は進行中の接続試行を共有する。
// 接続に失敗した場合は結果をキャッシュせず、次の呼び出しで再試行する。
type MongoConnector struct {
	uri    string
	dbName string
	dial   dialFunc

	mu    sync.RWMutex
	db    *mongo.Database
	group singleflight.Group
}

// NewMongoConnector はMongoConnectorを生成する。
// uriが空の場合は*model.ConfigurationErrorを返す。
func NewMongoConnector(uri, dbName string) (*MongoConnector, error) {
	if uri == "" {
		return nil, &model.ConfigurationError{Missing: []string{"MONGODB_URI"}}
	}
	if dbName == "" {
		dbName = "clipstream"
	}
	return &MongoConnector{
		uri:    uri,
		dbName: dbName,
		dial:   dialMongo,
	}, nil
}

// Database は接続済みのデータベースハンドルを返す。
// 未接続の場合は接続を確立する。失敗時は*model.ConnectionErrorを返す。
func (c *MongoConnector) Database(ctx context.Context) (*mongo.Database, error) {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	v, err, _ := c.group.Do("connect", func() (interface{}, error) {
		c.mu.RLock()
		cached := c.db
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		// 接続試行は待機中の全呼び出し元で共有するため、最初の呼び出し元の
		// キャンセルを引き継がない。上限はmongoConnectTimeoutで決まる。
		db, err := c.dial(context.WithoutCancel(ctx), c.uri, c.dbName)
		if err != nil {
			slog.Error("mongodb connection failed",
				slog.String("database", c.dbName),
				slog.String("error", err.Error()),
			)
			return nil, &model.ConnectionError{Err: err}
		}

		c.mu.Lock()
		c.db = db
		c.mu.Unlock()

		slog.Info("mongodb connected", slog.String("database", c.dbName))
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mongo.Database), nil
}

// Disconnect は確立済みの接続を閉じる。未接続の場合は何もしない。
func (c *MongoConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil || db.Client() == nil {
		return nil
	}
	if err := db.Client().Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongodb: %w", err)
	}
	return nil
}

func dialMongo(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(mongoMaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return client.Database(dbName), nil
}
