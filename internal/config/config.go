// Package config 加载引擎配置: yaml 文件 + 环境变量覆盖
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Lock     LockConfig     `yaml:"lock"`
	Document DocumentConfig `yaml:"document"`
	Auth     AuthConfig     `yaml:"auth"`
	Platform PlatformConfig `yaml:"platform"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin 模式: debug / release / test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite / mysql
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	// Addr 为空时使用本地锁
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LockConfig struct {
	MaxLockTime time.Duration `yaml:"max_lock_time"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

type DocumentConfig struct {
	Dir          string `yaml:"dir"`
	CacheSizeMax uint64 `yaml:"cache_size_max"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// 技术用户, 不存储在用户表中, 用来初始化租户
	TechnicalUser     string `yaml:"technical_user"`
	TechnicalPassword string `yaml:"technical_password"`
}

type PlatformConfig struct {
	Version       string `yaml:"version"`
	DefaultTenant string `yaml:"default_tenant"`
}

type LoggingConfig struct {
	Env        string `yaml:"env"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default 默认配置, sqlite + 本地锁
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080", Mode: "release"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "bpm.sqlite3"},
		Lock:     LockConfig{MaxLockTime: 10 * time.Minute, WaitTimeout: 5 * time.Second},
		Document: DocumentConfig{Dir: "bpm-documents", CacheSizeMax: 16 << 20},
		Auth: AuthConfig{
			JWTSecret:         "default-secret-change-in-production",
			TokenTTL:          24 * time.Hour,
			TechnicalUser:     "install",
			TechnicalPassword: "install",
		},
		Platform: PlatformConfig{Version: "1.0.0", DefaultTenant: "default"},
		Logging:  LoggingConfig{Env: "development"},
	}
}

// Load 读取配置文件(可以为空)并叠加环境变量
// envFile 不存在时忽略
func Load(path string, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithMessagef(err, "read config file failed, path: %s", path)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.WithMessagef(err, "parse config file failed, path: %s", path)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.WithMessagef(err, "load env file failed, path: %s", envFile)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "BPM_SERVER_ADDR")
	setString(&c.Server.Mode, "BPM_SERVER_MODE")
	setString(&c.Database.Driver, "BPM_DB_DRIVER")
	setString(&c.Database.DSN, "BPM_DB_DSN")
	setString(&c.Redis.Addr, "BPM_REDIS_ADDR")
	setString(&c.Redis.Password, "BPM_REDIS_PASSWORD")
	setString(&c.Document.Dir, "BPM_DOCUMENT_DIR")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.TechnicalUser, "BPM_TECHNICAL_USER")
	setString(&c.Auth.TechnicalPassword, "BPM_TECHNICAL_PASSWORD")
	setString(&c.Platform.DefaultTenant, "BPM_DEFAULT_TENANT")
	setString(&c.Logging.Env, "ENV")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.File, "LOG_FILE")

	if v := os.Getenv("BPM_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("invalid BPM_REDIS_DB: %s", v)
		}
		c.Redis.DB = db
	}
	for key, target := range map[string]*time.Duration{
		"BPM_LOCK_MAX_TIME":     &c.Lock.MaxLockTime,
		"BPM_LOCK_WAIT_TIMEOUT": &c.Lock.WaitTimeout,
		"BPM_TOKEN_TTL":         &c.Auth.TokenTTL,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Errorf("invalid %s: %s", key, v)
		}
		*target = d
	}
	return nil
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}
