// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找；
// 加载后再用 .env 与环境变量（前缀 RC_）覆盖敏感项和主机地址
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml" // TOML 配置文件解析库
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName        string        `toml:"appName"`                              // 应用名称，用于日志标识等
	Mode           string        `toml:"mode" env:"MODE"`                      // 运行模式 dev/release
	Host           string        `toml:"host" env:"HOST"`                      // 服务器监听地址，如 "0.0.0.0"
	Port           int           `toml:"port" env:"PORT"`                      // 服务器监听端口，如 8000
	TLSRedirect    bool          `toml:"tlsRedirect"`                          // 是否开启 HTTP -> HTTPS 重定向
	RequestTimeout time.Duration `toml:"requestTimeout" env:"REQUEST_TIMEOUT"` // 单个请求的总超时
	AllowOrigins   []string      `toml:"allowOrigins"`                         // CORS 允许的来源
}

// MysqlConfig MySQL 数据库连接配置（关系库后端）
type MysqlConfig struct {
	Host         string        `toml:"host" env:"HOST"`         // MySQL 服务器地址
	Port         int           `toml:"port" env:"PORT"`         // MySQL 端口，默认 3306
	User         string        `toml:"user" env:"USER"`         // 数据库用户名
	Password     string        `toml:"password" env:"PASSWORD"` // 数据库密码
	DatabaseName string        `toml:"databaseName"`            // 数据库名称
	Timeout      time.Duration `toml:"timeout"`                 // 连接与读写超时
	AutoMigrate  bool          `toml:"autoMigrate"`             // 启动时是否自动迁移表结构
}

// MongoConfig MongoDB 连接配置（文档库后端）
type MongoConfig struct {
	URI          string        `toml:"uri" env:"URI"` // 连接串，如 mongodb://localhost:27017
	DatabaseName string        `toml:"databaseName"`  // 数据库名称
	Timeout      time.Duration `toml:"timeout"`       // 客户端操作超时
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host" env:"HOST"`         // Redis 服务器地址
	Port     int    `toml:"port" env:"PORT"`         // Redis 端口，默认 6379
	Password string `toml:"password" env:"PASSWORD"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`                      // Redis 数据库编号，默认 0
	Workers  int    `toml:"workers"`                 // 异步缓存任务 worker 数
	Buffer   int    `toml:"buffer"`                  // 异步缓存任务缓冲区大小
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`           // 日志文件存储目录
	FileName   string `toml:"fileName"`          // 日志文件名
	MaxSize    int    `toml:"maxSize"`           // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"`        // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`            // 保留旧日志文件的最大天数
	Level      string `toml:"level" env:"LEVEL"` // 日志级别 debug/info/warn/error
}

// KafkaConfig Kafka 消息队列配置
type KafkaConfig struct {
	MessageMode   string        `toml:"messageMode" env:"MODE"`   // 事件投递模式："channel"（仅日志）或 "kafka"
	HostPort      string        `toml:"hostPort" env:"HOST_PORT"` // broker 地址，如 127.0.0.1:9092
	RelationTopic string        `toml:"relationTopic"`            // 关系事件主题
	Partition     int           `toml:"partition"`                // 创建 topic 时的分区数
	Timeout       time.Duration `toml:"timeout"`                  // 写超时
}

// JWTConfig JWT 认证配置
// 令牌由外部身份服务签发，本服务只校验
type JWTConfig struct {
	Secret string `toml:"secret" env:"SECRET"` // JWT 签名密钥
	Issuer string `toml:"issuer"`              // 期望的签发方，空表示不校验
}

// GatewayConfig 文档库路径的可信网关身份头
type GatewayConfig struct {
	TrustedHeader bool   `toml:"trustedHeader"`       // 是否接受网关注入的身份头
	Secret        string `toml:"secret" env:"SECRET"` // 网关与本服务共享的密钥，随 X-Gateway-Secret 传入
}

// RegionConfig 分区到后端的映射
type RegionConfig struct {
	CN     string `toml:"cn"`     // relational 或 document
	Global string `toml:"global"` // relational 或 document
}

// ResolverConfig 一致性相关参数
type ResolverConfig struct {
	Attempts     int           `toml:"attempts"`     // 插入竞争与读重试的最大尝试次数
	ListCacheTTL time.Duration `toml:"listCacheTTL"` // 会话列表缓存有效期，0 表示不缓存
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId" env:"MACHINE_ID"` // 节点 ID，范围 0-1023
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig" envPrefix:"MAIN_"`
	MysqlConfig     `toml:"mysqlConfig" envPrefix:"MYSQL_"`
	MongoConfig     `toml:"mongoConfig" envPrefix:"MONGO_"`
	RedisConfig     `toml:"redisConfig" envPrefix:"REDIS_"`
	LogConfig       `toml:"logConfig" envPrefix:"LOG_"`
	KafkaConfig     `toml:"kafkaConfig" envPrefix:"KAFKA_"`
	JWTConfig       `toml:"jwtConfig" envPrefix:"JWT_"`
	GatewayConfig   `toml:"gatewayConfig" envPrefix:"GATEWAY_"`
	RegionConfig    `toml:"regionConfig"`
	ResolverConfig  `toml:"resolverConfig"`
	SnowflakeConfig `toml:"snowflakeConfig" envPrefix:"SNOWFLAKE_"`
}

// config 全局配置单例，延迟加载
var config *Config

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		MainConfig: MainConfig{
			AppName:        "regionchat_server",
			Mode:           "dev",
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 10 * time.Second,
			AllowOrigins:   []string{"*"},
		},
		MysqlConfig: MysqlConfig{Port: 3306, Timeout: 5 * time.Second, AutoMigrate: true},
		MongoConfig: MongoConfig{URI: "mongodb://localhost:27017", DatabaseName: "regionchat", Timeout: 5 * time.Second},
		RedisConfig: RedisConfig{Host: "127.0.0.1", Port: 6379, Workers: 15, Buffer: 3000},
		LogConfig:   LogConfig{LogPath: "./logs", Level: "info"},
		KafkaConfig: KafkaConfig{MessageMode: "channel", RelationTopic: "relation_events", Partition: 3, Timeout: 3 * time.Second},
		RegionConfig: RegionConfig{
			CN:     "document",
			Global: "relational",
		},
		ResolverConfig:  ResolverConfig{Attempts: 3, ListCacheTTL: time.Minute},
		SnowflakeConfig: SnowflakeConfig{MachineID: 1},
	}
}

// Load 从多个候选路径加载配置文件，再应用环境变量覆盖
// 找不到配置文件时保留默认值，环境变量解析失败才返回错误
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{
			"configs/config_local.toml",       // 本地开发配置（优先）
			"configs/config.toml",             // 默认配置
			"../../configs/config_local.toml", // 从子目录运行时的路径
			"../../configs/config.toml",
		}
	}
	cfg := Default()
	for _, path := range paths {
		if _, err := toml.DecodeFile(path, cfg); err == nil {
			break
		}
	}

	// .env 不存在是正常情况
	_ = godotenv.Load()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "RC_"}); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	return cfg, nil
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		config = cfg
	}
	return config
}
