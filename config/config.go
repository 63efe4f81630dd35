package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Segment SegmentConfig `mapstructure:"segment"`
	Canvas  CanvasConfig  `mapstructure:"canvas"`
	Export  ExportConfig  `mapstructure:"export"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// BackendConfig 分割后端
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CSRFCookie string        `mapstructure:"csrf_cookie"`
	CSRFHeader string        `mapstructure:"csrf_header"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64         `mapstructure:"max_size"`
	AllowedTypes []string      `mapstructure:"allowed_types"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// SegmentConfig 自动分割的会话级默认参数
type SegmentConfig struct {
	Model           int `mapstructure:"model"`
	ContourFidelity int `mapstructure:"contour_fidelity"`
}

type CanvasConfig struct {
	EraseDelay time.Duration `mapstructure:"erase_delay"`
}

type ExportConfig struct {
	MaxConcurrentFetch int `mapstructure:"max_concurrent_fetch"`
}

const writeTimeoutMargin = 30 * time.Second

// Load 从 YAML 文件加载配置，环境变量 MASKKIT_* 覆盖文件中的值
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// New 使用默认配置路径加载配置
func New() *Config {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，使用默认值和环境变量
		return getDefaultConfig()
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MASKKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// ?wait=true 的请求要等后端结束，写超时不能短于后端超时
	if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout < cfg.Backend.Timeout+writeTimeoutMargin {
		cfg.Server.WriteTimeout = cfg.Backend.Timeout + writeTimeoutMargin
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 150*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("backend.base_url", "http://localhost:8000/api/")
	v.SetDefault("backend.timeout", 120*time.Second)
	v.SetDefault("backend.csrf_cookie", "csrftoken")
	v.SetDefault("backend.csrf_header", "X-CSRFToken")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 20*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/webp"})
	v.SetDefault("upload.ready_timeout", 5*time.Second)

	v.SetDefault("segment.model", 3)
	v.SetDefault("segment.contour_fidelity", 2)

	v.SetDefault("canvas.erase_delay", 300*time.Millisecond)

	v.SetDefault("export.max_concurrent_fetch", 4)
}

func getDefaultConfig() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		return &Config{}
	}
	return cfg
}
