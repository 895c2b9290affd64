package es

import (
	"Parley/internal/api/config"
	"Parley/internal/pkg/logger"
	"context"
	log "log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

var Client *elasticsearch.TypedClient

var MessageIndex string

const (
	NotFoundCode = 404
	ConflictCode = 409
)

// InitClient 初始化 Elasticsearch 客户端，并确保消息索引存在
func InitClient() error {
	elasticCfg := config.Cfg.Elastic

	MessageIndex = elasticCfg.Indices.MessageIndex

	cfg := elasticsearch.Config{
		Addresses: []string{elasticCfg.Address},
		Username:  elasticCfg.Username,
		Password:  elasticCfg.Password,
		Transport: &logger.ESTransport{
			Transport: http.DefaultTransport,
		},
		MaxRetries: 2,
	}

	client, err := elasticsearch.NewTypedClient(cfg)
	if err != nil {
		log.Error("Cannot Connect to Elasticsearch", "err", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := client.Info().Do(ctx)
	if err != nil {
		log.Error("Cannot Connect to Elasticsearch", "err", err)
		return err
	}

	if err = ensureMessageIndex(ctx, client); err != nil {
		log.Error("Cannot create message index", "index", MessageIndex, "err", err)
		return err
	}

	Client = client
	log.Info("Connected to Elasticsearch", "version", info.Version.Int, "index", MessageIndex)
	return nil
}

// ensureMessageIndex conversation_id 用于 term 过滤，content 走分词检索
func ensureMessageIndex(ctx context.Context, client *elasticsearch.TypedClient) error {
	exists, err := client.Indices.Exists(MessageIndex).Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = client.Indices.Create(MessageIndex).
		Mappings(&types.TypeMapping{
			Properties: map[string]types.Property{
				"id":              types.NewLongNumberProperty(),
				"conversation_id": types.NewLongNumberProperty(),
				"sender_id":       types.NewLongNumberProperty(),
				"seq":             types.NewLongNumberProperty(),
				"type":            types.NewKeywordProperty(),
				"content":         types.NewTextProperty(),
				"created_at":      types.NewDateProperty(),
			},
		}).
		Do(ctx)
	return err
}
