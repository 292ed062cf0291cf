// Package config assembles process configuration from an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mark3748/sla-notifier/internal/calendar"
	"github.com/mark3748/sla-notifier/internal/sla"
)

// BusinessHours is the calendar section.
type BusinessHours struct {
	Enabled  bool   `yaml:"enabled"`
	Start    string `yaml:"start" validate:"required,datetime=15:04"`
	End      string `yaml:"end" validate:"required,datetime=15:04"`
	Timezone string `yaml:"timezone" validate:"required"`
	Days     string `yaml:"days" validate:"required"`
}

// MinIO is the export object store section.
type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket" validate:"required"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Config holds settings shared by the worker and the API.
type Config struct {
	Env                 string        `yaml:"env" validate:"required"`
	LogLevel            string        `yaml:"log_level"`
	Addr                string        `yaml:"addr" validate:"required"`
	StoreBackend        string        `yaml:"store_backend" validate:"oneof=file postgres"`
	DataDir             string        `yaml:"data_dir" validate:"required_if=StoreBackend file"`
	DatabaseURL         string        `yaml:"database_url" validate:"required_if=StoreBackend postgres"`
	RedisAddr           string        `yaml:"redis_addr"`
	PollInterval        time.Duration `yaml:"poll_interval" validate:"min=1s"`
	StoreReloadInterval time.Duration `yaml:"store_reload_interval" validate:"min=1s"`
	BusinessHours       BusinessHours `yaml:"business_hours"`
	SLADurations        string        `yaml:"sla_durations"`
	UnwarrantedTag      string        `yaml:"unwarranted_tag" validate:"required"`
	ChatWebhookURL      string        `yaml:"chat_webhook_url" validate:"omitempty,url"`
	ChatRatePerSec      float64       `yaml:"chat_rate_per_sec" validate:"gte=0"`
	TicketingBaseURL    string        `yaml:"ticketing_base_url" validate:"omitempty,url"`
	TicketingToken      string        `yaml:"ticketing_token"`
	AuthSecret          string        `yaml:"auth_secret"`
	OIDCJWKSURL         string        `yaml:"oidc_jwks_url" validate:"omitempty,url"`
	TestBypassAuth      bool          `yaml:"test_bypass_auth"`
	RateLimitPerMin     int           `yaml:"rate_limit_per_min" validate:"gte=0"`
	MinIO               MinIO         `yaml:"minio"`
	FileStorePath       string        `yaml:"filestore_path"`
	StatsCacheTTL       time.Duration `yaml:"stats_cache_ttl" validate:"gte=0"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Env:                 "dev",
		LogLevel:            "info",
		Addr:                ":8080",
		StoreBackend:        "file",
		DataDir:             "data",
		RedisAddr:           "localhost:6379",
		PollInterval:        time.Minute,
		StoreReloadInterval: 10 * time.Second,
		BusinessHours: BusinessHours{
			Enabled:  true,
			Start:    "09:00",
			End:      "17:00",
			Timezone: "UTC",
			Days:     "mon-fri",
		},
		UnwarrantedTag: "sla_unwarranted",
		ChatRatePerSec: 1,
		MinIO:          MinIO{Bucket: "sla-exports"},
		StatsCacheTTL:  15 * time.Second,
	}
}

// GetEnv returns the environment variable value or def.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var validate = validator.New()

// Load builds the configuration. path names a YAML file; when empty,
// SLA_CONFIG_FILE is consulted, and with neither only defaults and the
// environment apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Defaults()
	if path == "" {
		path = os.Getenv("SLA_CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) error {
	var errs []error
	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(dst *bool, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	float := func(dst *float64, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str(&c.Env, "ENV")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.Addr, "ADDR")
	str(&c.StoreBackend, "STORE_BACKEND")
	str(&c.DataDir, "DATA_DIR")
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.RedisAddr, "REDIS_ADDR")
	dur(&c.PollInterval, "POLL_INTERVAL")
	dur(&c.StoreReloadInterval, "STORE_RELOAD_INTERVAL")
	boolean(&c.BusinessHours.Enabled, "BUSINESS_HOURS_ENABLED")
	str(&c.BusinessHours.Start, "BUSINESS_HOURS_START")
	str(&c.BusinessHours.End, "BUSINESS_HOURS_END")
	str(&c.BusinessHours.Timezone, "BUSINESS_HOURS_TIMEZONE")
	str(&c.BusinessHours.Days, "BUSINESS_DAYS")
	str(&c.SLADurations, "SLA_DURATIONS")
	str(&c.UnwarrantedTag, "UNWARRANTED_TAG")
	str(&c.ChatWebhookURL, "CHAT_WEBHOOK_URL")
	float(&c.ChatRatePerSec, "CHAT_RATE_PER_SEC")
	str(&c.TicketingBaseURL, "TICKETING_BASE_URL")
	str(&c.TicketingToken, "TICKETING_TOKEN")
	str(&c.AuthSecret, "AUTH_SECRET")
	str(&c.OIDCJWKSURL, "OIDC_JWKS_URL")
	boolean(&c.TestBypassAuth, "TEST_BYPASS_AUTH")
	integer(&c.RateLimitPerMin, "RATE_LIMIT_PER_MIN")
	str(&c.MinIO.Endpoint, "MINIO_ENDPOINT")
	str(&c.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	str(&c.MinIO.SecretKey, "MINIO_SECRET_KEY")
	str(&c.MinIO.Bucket, "MINIO_BUCKET")
	boolean(&c.MinIO.UseSSL, "MINIO_USE_SSL")
	str(&c.FileStorePath, "FILESTORE_PATH")
	dur(&c.StatsCacheTTL, "STATS_CACHE_TTL")
	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks field constraints and that the calendar and duration
// overrides parse.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Calendar(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Calendar builds the business calendar.
func (c Config) Calendar() (calendar.Calendar, error) {
	bh := c.BusinessHours
	start, err := calendar.ParseClock(bh.Start)
	if err != nil {
		return calendar.Calendar{}, fmt.Errorf("business hours start: %w", err)
	}
	end, err := calendar.ParseClock(bh.End)
	if err != nil {
		return calendar.Calendar{}, fmt.Errorf("business hours end: %w", err)
	}
	days, err := calendar.ParseWeekdays(bh.Days)
	if err != nil {
		return calendar.Calendar{}, fmt.Errorf("business days: %w", err)
	}
	cal := calendar.Calendar{
		Enabled:  bh.Enabled,
		Start:    start,
		End:      end,
		Timezone: bh.Timezone,
		Days:     days,
	}
	if cal.Enabled {
		if err := cal.Validate(); err != nil {
			return calendar.Calendar{}, err
		}
	}
	return cal, nil
}

// Policy builds the duration policy with the configured overrides.
func (c Config) Policy() (*sla.Policy, error) {
	overrides, err := sla.ParseDurations(c.SLADurations)
	if err != nil {
		return nil, fmt.Errorf("sla durations: %w", err)
	}
	return sla.NewPolicy(overrides), nil
}

// SetupLogging configures the global zerolog logger: console output in dev
// and the level from LogLevel.
func (c Config) SetupLogging() {
	if c.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
