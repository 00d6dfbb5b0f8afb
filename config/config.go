package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the audit service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Judge     JudgeConfig     `mapstructure:"judge"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Search    SearchConfig    `mapstructure:"search"`
	Retention RetentionConfig `mapstructure:"retention"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// JudgeConfig contains the LLM judge provider settings.
type JudgeConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
}

func (j JudgeConfig) Validate() error {
	if strings.TrimSpace(j.Provider) == "" {
		return fmt.Errorf("judge.provider is required")
	}
	if strings.TrimSpace(j.Model) == "" {
		return fmt.Errorf("judge.model is required")
	}
	if j.Timeout <= 0 {
		return fmt.Errorf("judge.timeout must be greater than zero")
	}
	return nil
}

// ChunkingConfig controls how documents are split before auditing.
type ChunkingConfig struct {
	MinChars       int     `mapstructure:"min_chars"`
	MaxChars       int     `mapstructure:"max_chars"`
	DefaultOverlap int     `mapstructure:"default_overlap"`
	Utilization    float64 `mapstructure:"utilization"`
	PromptReserve  int     `mapstructure:"prompt_reserve"`
}

func (c ChunkingConfig) Validate() error {
	if c.MinChars <= 0 || c.MaxChars <= 0 {
		return fmt.Errorf("audit.chunking.min_chars and max_chars must be greater than zero")
	}
	if c.MinChars > c.MaxChars {
		return fmt.Errorf("audit.chunking.min_chars cannot exceed max_chars")
	}
	if c.Utilization <= 0 || c.Utilization > 1 {
		return fmt.Errorf("audit.chunking.utilization must be in (0, 1]")
	}
	return nil
}

// ThresholdsConfig holds the approval gates applied to aggregated reports.
type ThresholdsConfig struct {
	StrictMin           float64 `mapstructure:"strict_min"`
	StrictMax           float64 `mapstructure:"strict_max"`
	CondensedMin        float64 `mapstructure:"condensed_min"`
	ScoreFloorStrict    float64 `mapstructure:"score_floor_strict"`
	ScoreFloorCondensed float64 `mapstructure:"score_floor_condensed"`
}

func (t ThresholdsConfig) Validate() error {
	if t.StrictMin <= 0 || t.StrictMax <= t.StrictMin {
		return fmt.Errorf("audit.thresholds strict range is invalid")
	}
	if t.CondensedMin <= 0 || t.CondensedMin > 1 {
		return fmt.Errorf("audit.thresholds.condensed_min must be in (0, 1]")
	}
	return nil
}

// SubAuditConfig toggles the secondary citation audit.
type SubAuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuditConfig contains audit engine settings.
type AuditConfig struct {
	Mode               string           `mapstructure:"mode"`
	MaxWorkers         int              `mapstructure:"max_workers"`
	MaxRetries         int              `mapstructure:"max_retries"`
	MaxFindingsPerKind int              `mapstructure:"max_findings_per_kind"`
	Chunking           ChunkingConfig   `mapstructure:"chunking"`
	Thresholds         ThresholdsConfig `mapstructure:"thresholds"`
	SubAudit           SubAuditConfig   `mapstructure:"subaudit"`
}

func (a AuditConfig) Validate() error {
	switch a.Mode {
	case "strict-fidelity", "condensed":
	default:
		return fmt.Errorf("audit.mode must be strict-fidelity or condensed, got %q", a.Mode)
	}
	if a.MaxWorkers <= 0 {
		return fmt.Errorf("audit.max_workers must be greater than zero")
	}
	if a.MaxRetries <= 0 {
		return fmt.Errorf("audit.max_retries must be greater than zero")
	}
	if err := a.Chunking.Validate(); err != nil {
		return err
	}
	return a.Thresholds.Validate()
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection string, preferring an explicit url over the
// individual fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(p.User), url.QueryEscape(p.Password), p.Host, p.Port, p.DBName, sslmode)
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the go-redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// QueueConfig contains Redis Streams settings for async audit jobs.
type QueueConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
	MaxLen   int64  `mapstructure:"max_len"`
}

func (q QueueConfig) Validate() error {
	if !q.Enabled {
		return nil
	}
	if strings.TrimSpace(q.Stream) == "" {
		return fmt.Errorf("queue.stream required when queue is enabled")
	}
	if strings.TrimSpace(q.Group) == "" {
		return fmt.Errorf("queue.group required when queue is enabled")
	}
	return nil
}

// ConsumerName returns the configured consumer id, falling back to the
// hostname so multiple workers in one group stay distinguishable.
func (q QueueConfig) ConsumerName() string {
	if strings.TrimSpace(q.Consumer) != "" {
		return q.Consumer
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "iudex-worker"
	}
	return host
}

// SearchConfig contains findings index settings.
type SearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IndexPath string `mapstructure:"index_path"`
}

// RetentionConfig controls the periodic purge of old reports.
type RetentionConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Cron       string `mapstructure:"cron"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func (r RetentionConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Cron) == "" {
		return fmt.Errorf("retention.cron required when retention is enabled")
	}
	if r.MaxAgeDays <= 0 {
		return fmt.Errorf("retention.max_age_days must be greater than zero")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
	LogFile      string `mapstructure:"log_file"`
}

// LoadConfig loads config from iudex.yaml (or the explicit path) and the
// IUDEX_* environment.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("iudex")
	viper.SetConfigType("yaml")

	setDefaults()

	if path == "" {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/iudex")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("IUDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus environment carry a full config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks every section that has constraints.
func (c *Config) Validate() error {
	if err := c.Judge.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	return c.Retention.Validate()
}

// overrideFromEnv maps well-known provider variables onto config fields so
// operators can keep secrets out of the yaml file.
func overrideFromEnv(config *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && config.Judge.APIKey == "" {
		config.Judge.APIKey = v
	}
	if v := os.Getenv("IUDEX_JWT_SECRET"); v != "" && config.Server.JWTSecret == "" {
		config.Server.JWTSecret = v
	}
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.environment", "development")
	viper.SetDefault("general.debug", false)

	viper.SetDefault("judge.provider", "openai")
	viper.SetDefault("judge.model", "gpt-5-mini")
	viper.SetDefault("judge.base_url", "https://api.openai.com/v1")
	viper.SetDefault("judge.timeout", "180s")
	viper.SetDefault("judge.temperature", 0.1)
	viper.SetDefault("judge.max_output_tokens", 4096)

	viper.SetDefault("audit.mode", "strict-fidelity")
	viper.SetDefault("audit.max_workers", 4)
	viper.SetDefault("audit.max_retries", 5)
	viper.SetDefault("audit.max_findings_per_kind", 20)
	viper.SetDefault("audit.chunking.min_chars", 4000)
	viper.SetDefault("audit.chunking.max_chars", 150000)
	viper.SetDefault("audit.chunking.default_overlap", 2000)
	viper.SetDefault("audit.chunking.utilization", 0.60)
	viper.SetDefault("audit.chunking.prompt_reserve", 8000)
	viper.SetDefault("audit.thresholds.strict_min", 0.95)
	viper.SetDefault("audit.thresholds.strict_max", 1.15)
	viper.SetDefault("audit.thresholds.condensed_min", 0.70)
	viper.SetDefault("audit.thresholds.score_floor_strict", 8.0)
	viper.SetDefault("audit.thresholds.score_floor_condensed", 7.0)
	viper.SetDefault("audit.subaudit.enabled", false)

	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("server.cors_origins", []string{"*"})

	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.user", "iudex")
	viper.SetDefault("storage.postgres.password", "iudex")
	viper.SetDefault("storage.postgres.dbname", "iudex")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.stream", "iudex.audits")
	viper.SetDefault("queue.group", "audit-workers")
	viper.SetDefault("queue.max_len", 10000)

	viper.SetDefault("search.enabled", true)
	viper.SetDefault("search.index_path", "")

	viper.SetDefault("retention.enabled", false)
	viper.SetDefault("retention.cron", "@daily")
	viper.SetDefault("retention.max_age_days", 90)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)
}
