package config

import "time"

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Relay    RelayConfig    `yaml:"relay"`
	Presence PresenceConfig `yaml:"presence"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
	Nats     NatsConfig     `yaml:"nats"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Admin    AdminConfig    `yaml:"admin"`
	Grpc     GrpcConfig     `yaml:"grpc"`
	Nacos    NacosConfig    `yaml:"nacos"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // http 监听地址
	NodeID          int64         `yaml:"node_id"`          // 雪花ID 节点
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // 优雅退出等待
	AllowOrigins    []string      `yaml:"allow_origins"`
}

// RelayConfig holds the liveness and relay limits. It is the only
// section applied on hot reload.
type RelayConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes"`
	MaxParseErrors    int           `yaml:"max_parse_errors"`
}

type PresenceConfig struct {
	UDPAddr      string        `yaml:"udp_addr"`      // 空则不启动 UDP 心跳
	ActiveWindow time.Duration `yaml:"active_window"` // /api/presence 默认活跃窗口
	MirrorTTL    time.Duration `yaml:"mirror_ttl"`    // redis 镜像过期
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MongoConfig struct {
	URI         string        `yaml:"uri"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	MaxPoolSize int           `yaml:"max_pool_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type NatsConfig struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"` // 空则举报只写日志
	ClientID          string   `yaml:"client_id"`
	ReportTopic       string   `yaml:"report_topic"`
	Version           string   `yaml:"version"`
	Compression       string   `yaml:"compression"` // none/snappy/lz4/zstd
	Retries           int      `yaml:"retries"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

type CryptoConfig struct {
	Key string `yaml:"key"` // base64, 32 bytes
}

type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // 空则诊断接口不鉴权
	Issuer    string `yaml:"issuer"`
}

type GrpcConfig struct {
	Addr string `yaml:"addr"`
}

type NacosConfig struct {
	Host        string `yaml:"host"` // 空则不监听
	Port        uint64 `yaml:"port"`
	Namespace   string `yaml:"namespace"`
	DataID      string `yaml:"data_id"`
	Group       string `yaml:"group"`
	CacheDir    string `yaml:"cache_dir"`
	LogDir      string `yaml:"log_dir"`
	ServiceName string `yaml:"service_name"` // 注册到 naming 的服务名
	AdvertiseIP string `yaml:"advertise_ip"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // 空则只输出到 stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no file is given: every
// external backend disabled, in-memory stores only.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			NodeID:          1,
			ShutdownTimeout: 10 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Relay: DefaultRelay(),
		Presence: PresenceConfig{
			UDPAddr:      ":5005",
			ActiveWindow: 120 * time.Second,
			MirrorTTL:    180 * time.Second,
		},
		Mongo: MongoConfig{
			Database:    "ppsignal",
			MaxPoolSize: 20,
			Timeout:     10 * time.Second,
		},
		Nats: NatsConfig{
			Name:          "ppsignal",
			SubjectPrefix: "ppsignal",
		},
		Kafka: KafkaConfig{
			ClientID:          "ppsignal",
			ReportTopic:       "message_reports",
			Version:           "2.1.0",
			Compression:       "snappy",
			Retries:           5,
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Admin: AdminConfig{Issuer: "ppsignal"},
		Grpc:  GrpcConfig{Addr: ":50051"},
		Nacos: NacosConfig{
			Port:        8848,
			Group:       "DEFAULT_GROUP",
			DataID:      "ppsignal.yaml",
			CacheDir:    "nacos/cache",
			LogDir:      "nacos/log",
			ServiceName: "ppsignal",
			AdvertiseIP: "127.0.0.1",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

func DefaultRelay() RelayConfig {
	return RelayConfig{
		HeartbeatInterval: 20 * time.Second,
		InactivityTimeout: 90 * time.Second,
		ConnectionTimeout: 300 * time.Second,
		CleanupInterval:   30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageBytes:   1 << 20,
		MaxParseErrors:    3,
	}
}
