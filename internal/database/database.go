// Package database keeps the notification event log, in MongoDB or in memory.
package database

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/life-stream-dev/afk-bridge/internal/config"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
)

const defaultOperationTimeout = 5 * time.Second

var ErrDisabled = errors.New("database is disabled")

// Client owns the mongo connection used by the event log.
type Client struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

// BuildURI returns the connection string for cfg, escaping credentials.
func BuildURI(cfg config.Config) string {
	db := cfg.Database
	if db.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d/", db.Host, db.Port)
	}
	// 编码特殊字符
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		url.QueryEscape(db.Username), url.QueryEscape(db.Password), db.Host, db.Port)
}

func clientOptions(cfg config.Config) *options.ClientOptions {
	db := cfg.Database
	opts := options.Client().ApplyURI(BuildURI(cfg)).SetAppName(cfg.App.Name)
	// 连接池配置
	opts.SetMinPoolSize(db.MinPoolSize)
	opts.SetMaxPoolSize(db.MaxPoolSize)
	opts.SetMaxConnIdleTime(db.ConnectIdleTimeout.Value())
	// 超时限制
	opts.SetConnectTimeout(db.ConnectTimeout.Value())
	opts.SetSocketTimeout(db.SocketTimeout.Value())
	opts.SetHeartbeatInterval(db.Heartbeat.Value())
	if db.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// 连接池监控
	opts.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s #%d", evt.Address, evt.ConnectionID)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s #%d (%s)", evt.Address, evt.ConnectionID, evt.Reason)
			}
		},
	})
	return opts
}

// Connect dials and pings MongoDB. It returns ErrDisabled when database.enabled is false.
func Connect(ctx context.Context, cfg config.Config) (*Client, error) {
	if !cfg.Database.Enabled {
		return nil, ErrDisabled
	}
	logger.DebugF("Connecting to database %s:%d", cfg.Database.Host, cfg.Database.Port)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	timeout := cfg.Database.OperationTimeout.Value()
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	logger.InfoF("Connected to database %s", cfg.Database.Database)
	return &Client{client: client, db: client.Database(cfg.Database.Database), operationTimeout: timeout}, nil
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

func (c *Client) ensureIndexes(ctx context.Context, name string, models ...mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()
	if _, err := c.collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("error occured while creating database indexes: %w", err)
	}
	return nil
}

// Invoke disconnects the client; it is registered with the cleaner.
func (c *Client) Invoke(ctx context.Context) error {
	logger.Info("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

func wrapError(err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("unique key conflicts: %w", err)
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("document does not exist: %w", err)
	default:
		return fmt.Errorf("database operation failed: %w", err)
	}
}

func operatorFilter(operator string) bson.D {
	if operator == "" {
		return bson.D{}
	}
	return bson.D{{Key: "operator", Value: operator}}
}
