// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token     string `yaml:"token"`
	Mode      string `yaml:"mode"` // polling only for now
	Username  string `yaml:"username"`
	Workers   int    `yaml:"workers"` // update workers
	CreatorID int64  `yaml:"creator_id"`
	// Local Bot API server. Required to download attachments above the 20 MB cloud limit.
	APIEndpoint  string `yaml:"api_endpoint"`
	FileEndpoint string `yaml:"file_endpoint"`
	APIID        string `yaml:"api_id"`
	APIHash      string `yaml:"api_hash"`
	DefaultLang  string `yaml:"default_lang"`
}

// SessionConfigured reports whether the elevated download path is available.
func (b BotConfig) SessionConfigured() bool {
	return strings.TrimSpace(b.APIEndpoint) != ""
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
	File     string `yaml:"file"`     // also append to this file (served by /log)
}

type AdminConfig struct {
	Port      int           `yaml:"port"`
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RelayConfig struct {
	StorageDir       string        `yaml:"storage_dir"`
	ChunkSize        int           `yaml:"chunk_size"`
	JobPause         time.Duration `yaml:"job_pause"`
	EditInterval     time.Duration `yaml:"edit_interval"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes"`
	HistoryLimit     int           `yaml:"history_limit"`
	HistoryRetain    int           `yaml:"history_retain"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	SweepMaxAge      time.Duration `yaml:"sweep_max_age"`
}

type HydraxConfig struct {
	BaseURL string `yaml:"base_url"`
}

type S3Config struct {
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

type SFTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	PrivateKeyFile string `yaml:"private_key_file"`
	BaseDir        string `yaml:"base_dir"`
}

type UploadConfig struct {
	Backend       string        `yaml:"backend"` // hydrax|s3|minio|gcs|sftp
	DefaultTarget string        `yaml:"default_target"`
	Attempts      int           `yaml:"attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Hydrax        HydraxConfig  `yaml:"hydrax"`
	S3            S3Config      `yaml:"s3"`
	Minio         MinioConfig   `yaml:"minio"`
	GCS           GCSConfig     `yaml:"gcs"`
	SFTP          SFTPConfig    `yaml:"sftp"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Relay    RelayConfig    `yaml:"relay"`
	Upload   UploadConfig   `yaml:"upload"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (a missing file is fine when the environment
// carries the required values), applies .env and environment overrides, then defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setStr := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Bot.Token, "BOT_TOKEN")
	setStr(&cfg.Bot.APIID, "API_ID")
	setStr(&cfg.Bot.APIHash, "API_HASH")
	setStr(&cfg.Bot.APIEndpoint, "BOT_API_ENDPOINT")
	setStr(&cfg.Upload.DefaultTarget, "HYDRAX_API_ID")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Admin.APIKey, "ADMIN_API_KEY")

	if v := os.Getenv("CREATOR_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CREATOR_ID: %w", err)
		}
		cfg.Bot.CreatorID = id
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.DefaultLang == "" {
		cfg.Bot.DefaultLang = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Relay.StorageDir == "" {
		cfg.Relay.StorageDir = "downloads"
	}
	if cfg.Relay.ChunkSize <= 0 {
		cfg.Relay.ChunkSize = 1 << 20
	}
	if cfg.Relay.JobPause < 0 {
		cfg.Relay.JobPause = 0
	} else if cfg.Relay.JobPause == 0 {
		cfg.Relay.JobPause = time.Second
	}
	if cfg.Relay.EditInterval <= 0 {
		cfg.Relay.EditInterval = 2 * time.Second
	}
	if cfg.Relay.HistoryLimit <= 0 {
		cfg.Relay.HistoryLimit = 10
	}
	if cfg.Relay.HistoryRetain <= 0 {
		cfg.Relay.HistoryRetain = 100
	}
	if cfg.Relay.SweepInterval <= 0 {
		cfg.Relay.SweepInterval = time.Hour
	}
	if cfg.Relay.SweepMaxAge <= 0 {
		cfg.Relay.SweepMaxAge = 6 * time.Hour
	}

	cfg.Upload.Backend = strings.ToLower(strings.TrimSpace(cfg.Upload.Backend))
	if cfg.Upload.Backend == "" {
		cfg.Upload.Backend = "hydrax"
	}
	if cfg.Upload.Backend != "hydrax" && cfg.Upload.DefaultTarget == "" {
		// object stores and sftp treat the target as a key prefix
		cfg.Upload.DefaultTarget = "relay"
	}
	if cfg.Upload.Attempts <= 0 {
		cfg.Upload.Attempts = 1
	}
	if cfg.Upload.RetryDelay <= 0 {
		cfg.Upload.RetryDelay = 5 * time.Second
	}
	if cfg.Upload.Hydrax.BaseURL == "" {
		cfg.Upload.Hydrax.BaseURL = "http://up.hydrax.net"
	}
	if cfg.Upload.SFTP.Port == 0 {
		cfg.Upload.SFTP.Port = 22
	}
}

// Validate performs minimal checks; backend credentials are checked when the backend is built.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if c.Bot.CreatorID == 0 {
		return errors.New("bot.creator_id is required")
	}
	switch c.Upload.Backend {
	case "hydrax", "s3", "minio", "gcs", "sftp":
	default:
		return fmt.Errorf("upload.backend %q is not supported", c.Upload.Backend)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
