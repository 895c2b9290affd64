package database

import (
	"Parley/internal/api/config"
	"Parley/internal/pkg/logger"
	"context"
	"fmt"
	log "log/slog"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewGormDB 初始化并返回 *gorm.DB 实例，处理连接池配置。
// 会话与消息读写依赖 parseTime，DSN 缺失时自动补上
func NewGormDB(cfg *config.DBConfig) (*gorm.DB, error) {
	dsnCfg, err := mysqldriver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn: %w", err)
	}
	dsnCfg.ParseTime = true
	if dsnCfg.Loc == nil {
		dsnCfg.Loc = time.Local
	}

	db, err := gorm.Open(mysql.Open(dsnCfg.FormatDSN()), &gorm.Config{
		Logger:                 logger.NewGormLogger(),
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database connection check failed: %w", err)
	}

	log.Info("Database connection established successfully.", "addr", dsnCfg.Addr, "db", dsnCfg.DBName)
	return db, nil
}
