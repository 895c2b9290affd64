package mongo

import (
	"Parley/internal/api/config"
	"Parley/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

var client *mongo.Client

// InitMongo 建立连接并返回 Database 引用。
// 审计日志允许丢失，写关注只要求主节点确认
func InitMongo(cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetAppName("parley").
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20).
		SetWriteConcern(writeconcern.W1()).
		SetMonitor(logger.NewMongoMonitor())

	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	// 检查连通性
	if err = c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, err
	}

	client = c
	log.Info("MongoDB initialized successfully", "db", cfg.Database)
	return c.Database(cfg.Database), nil
}

// Close 断开连接，未初始化时忽略
func Close() {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Error("MongoDB disconnect failed", "err", err)
	}
}
