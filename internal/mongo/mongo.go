// Package mongo MongoDB 连接管理
//
// MongoDB 为可选依赖：未配置 MONGO_URI 时 InitFromConfig 返回 nil，
// 频道消息记录、目录库与转发记录随之关闭，其余功能照常运行。
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mirror_bot/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultTimeout 连接与首次 ping 的超时
const DefaultTimeout = 10 * time.Second

// appName 写入连接握手，便于在服务端区分客户端
const appName = "mirror_bot"

// ErrNotConnected 客户端未初始化
var ErrNotConnected = errors.New("MongoDB client is not initialized")

// Client 封装 MongoDB 客户端与数据库名
type Client struct {
	*mongo.Client
	dbName string
}

// Config 连接配置
type Config struct {
	URI      string        // 例如 "mongodb://localhost:27017"
	Database string        // 数据库名称
	Timeout  time.Duration // 为 0 时使用 DefaultTimeout
}

func (c Config) validate() error {
	if c.URI == "" {
		return fmt.Errorf("MongoDB URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	return nil
}

// InitFromConfig 由应用配置创建客户端；未配置 MONGO_URI 时返回 nil
func InitFromConfig(cfg *config.Config) (*Client, error) {
	if cfg.MongoURI == "" {
		return nil, nil
	}
	return NewClient(Config{URI: cfg.MongoURI, Database: cfg.MongoDBName})
}

// NewClient 连接并 ping 一次，失败时断开已建立的连接
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(cfg.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		Client: client,
		dbName: cfg.Database,
	}, nil
}

// Close 断开连接，对 nil 客户端安全
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Disconnect(ctx)
}

// Database 返回配置的数据库句柄
func (c *Client) Database() *mongo.Database {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Database(c.dbName)
}

// Ping 验证与 MongoDB 的连接
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return ErrNotConnected
	}
	return c.Client.Ping(ctx, readpref.Primary())
}
