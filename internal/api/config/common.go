package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_open", 100)
	v.SetDefault("database.max_lifetime", 60)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.pool_size", 50)

	v.SetDefault("mongo.url", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "parley")

	v.SetDefault("elastic.address", "http://127.0.0.1:9200")
	v.SetDefault("elastic.indices.message_index", "parley_messages")

	v.SetDefault("logstash.index", "logstash-parley")

	v.SetDefault("jwt.issuer", "Parley")

	v.SetDefault("kafka.consumer.session_timeout", 30)
	v.SetDefault("kafka.consumer.heartbeat_interval", 3)
	v.SetDefault("kafka.consumer.rebalance_timeout", 60)
	v.SetDefault("kafka.consumer.max_processing_time", 5)
	v.SetDefault("kafka_follow_consumer.topic", "canal_parley_user_follows")
	v.SetDefault("kafka_follow_consumer.group_id", "parley-follow-cache")
	v.SetDefault("kafka_message_consumer.topic", "canal_parley_messages")
	v.SetDefault("kafka_message_consumer.group_id", "parley-message-index")

	v.SetDefault("presence.lease", 300)
	v.SetDefault("presence.offline_ttl", 86400)

	v.SetDefault("message.send_attempts", 3)
	v.SetDefault("message.backoff_base_ms", 50)

	v.SetDefault("call.ring_timeout", 45)
	v.SetDefault("call.sweep_spec", "*/15 * * * * *")
	v.SetDefault("call.create_attempts", 3)
	v.SetDefault("call.backoff_base_ms", 50)

	v.SetDefault("fanout.transport", "redis")
	v.SetDefault("fanout.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("fanout.workers", 16)
	v.SetDefault("fanout.queue_size", 1024)
	v.SetDefault("fanout.publish_timeout_ms", 2000)

	v.SetDefault("relationship.mode", "local")
	v.SetDefault("relationship.timeout_ms", 800)
	v.SetDefault("relationship.fallback", false)
}
