package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production"
	DSN            string // MySQL DSN
	RedisURL       string // empty when Redis is not configured
	Database       DatabaseRuntimeConfig
	Redis          RedisRuntimeConfig
	Mongo          MongoRuntimeConfig
	Paths          RuntimePathsConfig
	AllowedOrigins []string
	JWTSecret      string
	Timezone       string
	Drafts         DraftsConfig
	RateLimit      RateLimitConfig
}

type DatabaseRuntimeConfig struct {
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

type MongoRuntimeConfig struct {
	URI      string
	Database string
}

type RuntimePathsConfig struct {
	Logs string
}

// DraftsConfig selects the draft store and the autosave policy handed to editors.
type DraftsConfig struct {
	Storage            string // mysql | mongo | memory
	AutoSaveWait       int    // seconds, <= 0 disables autosave
	AutoSaveTimeout    int    // seconds
	AutoSaveInputBased bool
	LifeSpanDays       int // 0 keeps drafts forever
	EventsChannel      string
}

type RateLimitConfig struct {
	Enable       bool
	MaxPerSecond int64
}

type rawAppConfig struct {
	Port           int                `yaml:"port"`
	Env            string             `yaml:"env"`
	DSN            string             `yaml:"dsn"`
	RedisURL       string             `yaml:"redis_url"`
	Database       rawDatabaseConfig  `yaml:"database"`
	Redis          rawRedisConfig     `yaml:"redis"`
	Mongo          rawMongoConfig     `yaml:"mongo"`
	Paths          rawPathsConfig     `yaml:"paths"`
	LogDir         string             `yaml:"log_dir"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	JWTSecret      string             `yaml:"jwt_secret"`
	Timezone       string             `yaml:"timezone"`
	TZ             string             `yaml:"tz"`
	Drafts         rawDraftsConfig    `yaml:"drafts"`
	RateLimit      rawRateLimitConfig `yaml:"rate_limit"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawMongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawDraftsConfig struct {
	Storage            string `yaml:"storage"`
	AutoSaveWait       *int   `yaml:"auto_save_wait"`
	AutoSaveTimeout    *int   `yaml:"auto_save_timeout"`
	AutoSaveInputBased *bool  `yaml:"auto_save_input_based"`
	LifeSpanDays       *int   `yaml:"life_span_days"`
	EventsChannel      string `yaml:"events_channel"`
}

type rawRateLimitConfig struct {
	Enable       *bool  `yaml:"enable"`
	MaxPerSecond *int64 `yaml:"max_per_second"`
}

// Load reads the YAML file at configPath. Unknown keys are an error.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	applyRawAppConfig(&cfg, raw)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	switch c.Drafts.Storage {
	case StorageMySQL, StorageMemory:
	case StorageMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("drafts.storage is mongo but mongo.uri is empty")
		}
	default:
		return fmt.Errorf("invalid drafts.storage %q, expected mysql, mongo or memory", c.Drafts.Storage)
	}
	if c.Drafts.AutoSaveTimeout < 0 {
		return fmt.Errorf("invalid drafts.auto_save_timeout %d, expected >= 0", c.Drafts.AutoSaveTimeout)
	}
	if c.Drafts.LifeSpanDays < 0 {
		return fmt.Errorf("invalid drafts.life_span_days %d, expected >= 0", c.Drafts.LifeSpanDays)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{Port: defaultRedisPort},
		Drafts: DraftsConfig{
			Storage:         StorageMySQL,
			AutoSaveWait:    defaultAutoSaveWait,
			AutoSaveTimeout: defaultAutoSaveTimeout,
			LifeSpanDays:    defaultLifeSpanDays,
		},
		RateLimit: RateLimitConfig{Enable: true, MaxPerSecond: defaultRateLimit},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.Mongo = normalizeMongoConfig(MongoRuntimeConfig{URI: raw.Mongo.URI, Database: raw.Mongo.Database})

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	cfg.Drafts = applyRawDraftsConfig(cfg.Drafts, raw.Drafts)
	if raw.RateLimit.Enable != nil {
		cfg.RateLimit.Enable = *raw.RateLimit.Enable
	}
	if raw.RateLimit.MaxPerSecond != nil {
		cfg.RateLimit.MaxPerSecond = *raw.RateLimit.MaxPerSecond
	}

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	db := raw.Database

	if v := strings.TrimSpace(db.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(db.Host); v != "" {
		cfg.Host = v
	}
	if db.Port != 0 {
		cfg.Port = db.Port
	}
	if v := strings.TrimSpace(db.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(db.Username); v != "" {
		cfg.User = v
	}
	if db.Password != "" {
		cfg.Password = db.Password
	}
	if v := strings.TrimSpace(db.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(db.Charset); v != "" {
		cfg.Charset = v
	}
	if db.ParseTime != nil {
		cfg.ParseTime = *db.ParseTime
	}
	if v := strings.TrimSpace(db.Loc); v != "" {
		cfg.Loc = v
	}
	if db.Params != nil {
		cfg.Params = copyStringMap(db.Params)
	}
	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current
	r := raw.Redis

	if v := strings.TrimSpace(r.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		cfg.Host = v
	}
	if r.Port != 0 {
		cfg.Port = r.Port
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		cfg.Username = v
	}
	if r.Password != "" {
		cfg.Password = r.Password
	}
	if r.DB != nil {
		cfg.DB = *r.DB
	}
	if r.TLS != nil {
		cfg.TLS = *r.TLS
	}
	return normalizeRedisConfig(cfg)
}

func applyRawDraftsConfig(current DraftsConfig, raw rawDraftsConfig) DraftsConfig {
	cfg := current
	if v := strings.TrimSpace(raw.Storage); v != "" {
		cfg.Storage = strings.ToLower(v)
	}
	if raw.AutoSaveWait != nil {
		cfg.AutoSaveWait = *raw.AutoSaveWait
	}
	if raw.AutoSaveTimeout != nil {
		cfg.AutoSaveTimeout = *raw.AutoSaveTimeout
	}
	if raw.AutoSaveInputBased != nil {
		cfg.AutoSaveInputBased = *raw.AutoSaveInputBased
	}
	if raw.LifeSpanDays != nil {
		cfg.LifeSpanDays = *raw.LifeSpanDays
	}
	if v := strings.TrimSpace(raw.EventsChannel); v != "" {
		cfg.EventsChannel = v
	}
	return cfg
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}

// LogDir is where the daily log files go: paths.logs, or "logs" under the drafts home.
func (c *AppConfig) LogDir() string {
	return resolvePath(c.Paths.Logs, "logs")
}

// LifeSpan is how long an untouched draft is kept, zero for forever.
func (c *AppConfig) LifeSpan() time.Duration {
	return time.Duration(c.Drafts.LifeSpanDays) * 24 * time.Hour
}
