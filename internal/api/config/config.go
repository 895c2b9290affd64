package config

// Config 配置主体
type Config struct {
	Server               ServerConfig       `mapstructure:"server"`
	DB                   DBConfig           `mapstructure:"database"`
	Redis                RedisConfig        `mapstructure:"redis"`
	Mongo                MongoConfig        `mapstructure:"mongo"`
	Elastic              ElasticConfig      `mapstructure:"elastic"`
	Logstash             LogstashConfig     `mapstructure:"logstash"`
	JWT                  JWTConfig          `mapstructure:"jwt"`
	Kafka                KafkaConfig        `mapstructure:"kafka"`
	KafkaFollowConsumer  KafkaTopicConsumer `mapstructure:"kafka_follow_consumer"`
	KafkaMessageConsumer KafkaTopicConsumer `mapstructure:"kafka_message_consumer"`
	Presence             PresenceConfig     `mapstructure:"presence"`
	Message              MessageConfig      `mapstructure:"message"`
	Call                 CallConfig         `mapstructure:"call"`
	Fanout               FanoutConfig       `mapstructure:"fanout"`
	Relationship         RelationshipConfig `mapstructure:"relationship"`
	WebRTC               WebRTCConfig       `mapstructure:"webrtc"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// ElasticConfig Elastic配置
type ElasticConfig struct {
	Address  string         `mapstructure:"address"`
	Username string         `mapstructure:"username"`
	Password string         `mapstructure:"password"`
	Indices  ElasticIndices `mapstructure:"indices"`
}

// ElasticIndices Elastic索引
type ElasticIndices struct {
	MessageIndex string `mapstructure:"message_index"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

// KafkaTopicConsumer canal binlog 主题消费配置
type KafkaTopicConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// PresenceConfig 在线状态租约，单位秒
type PresenceConfig struct {
	Lease      int `mapstructure:"lease"`
	OfflineTTL int `mapstructure:"offline_ttl"`
}

// MessageConfig 消息发送重试
type MessageConfig struct {
	SendAttempts  int `mapstructure:"send_attempts"`
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
}

// CallConfig 通话振铃超时（秒）与建单冲突重试
type CallConfig struct {
	RingTimeout    int    `mapstructure:"ring_timeout"`
	SweepSpec      string `mapstructure:"sweep_spec"`
	CreateAttempts int    `mapstructure:"create_attempts"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
}

// FanoutConfig 推送分发
type FanoutConfig struct {
	Transport        string `mapstructure:"transport"`
	NatsURL          string `mapstructure:"nats_url"`
	Workers          int    `mapstructure:"workers"`
	QueueSize        int    `mapstructure:"queue_size"`
	PublishTimeoutMs int    `mapstructure:"publish_timeout_ms"`
}

// RelationshipConfig 好友关系校验
type RelationshipConfig struct {
	Mode      string `mapstructure:"mode"`
	RemoteURL string `mapstructure:"remote_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Fallback  bool   `mapstructure:"fallback"`
}

type WebRTCConfig struct {
	ICEServers []ICEServerConfig `mapstructure:"ice_servers"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}
