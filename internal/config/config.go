// Package config loads the process configuration once at startup.
// Precedence: environment variables, then the .env file, then the optional
// YAML file, then defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"go-etl-pipeline/internal/model"
)

const (
	// EnvConfigPath names the YAML file when --config is not given.
	EnvConfigPath = "PIPELINE_CONFIG"
	// EnvDotEnvPath names the dotenv file. Without it, ./.env is read if present.
	EnvDotEnvPath = "PIPELINE_ENV_FILE"
	defaultDotEnv = ".env"
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"pipeline.name":               "PIPELINE_NAME",
	"pipeline.spool_dir":          "PIPELINE_SPOOL_DIR",
	"pipeline.start_date":         "PIPELINE_START_DATE",
	"pipeline.retry_delay":        "PIPELINE_RETRY_DELAY",
	"pipeline.retries":            "PIPELINE_RETRIES",
	"source.url":                  "SOURCE_URL",
	"source.timeout":              "SOURCE_TIMEOUT",
	"object_store.endpoint":       "MINIO_ENDPOINT",
	"object_store.access_key":     "MINIO_ACCESS_KEY",
	"object_store.secret_key":     "MINIO_SECRET_KEY",
	"object_store.region":         "MINIO_REGION",
	"object_store.bucket":         "S3_BUCKET",
	"object_store.use_ssl":        "MINIO_USE_SSL",
	"warehouse.driver":            "WAREHOUSE_DRIVER",
	"warehouse.dsn":               "WAREHOUSE_DSN",
	"notifier.kind":               "NOTIFIER",
	"notifier.image_path":         "ALERT_IMAGE_PATH",
	"notifier.telegram.bot_token": "BOT_TOKEN",
	"notifier.telegram.chat_id":   "CHAT_ID",
	"notifier.telegram.api_url":   "TELEGRAM_API_URL",
	"notifier.amqp.url":           "AMQP_URL",
	"notifier.amqp.queue":         "AMQP_QUEUE",
	"history.path":                "HISTORY_DB",
	"lock.redis_addr":             "REDIS_ADDR",
	"lock.password":               "REDIS_PASSWORD",
	"lock.ttl":                    "LOCK_TTL",
	"http.addr":                   "HTTP_ADDR",
	"http.color_logs":             "HTTP_COLOR_LOGS",
	"log.level":                   "LOG_LEVEL",
}

const (
	NotifierTelegram = "telegram"
	NotifierAMQP     = "amqp"
	NotifierLog      = "log"
)

type Config struct {
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Source      SourceConfig      `yaml:"source" mapstructure:"source"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" mapstructure:"object_store"`
	Warehouse   WarehouseConfig   `yaml:"warehouse" mapstructure:"warehouse"`
	Notifier    NotifierConfig    `yaml:"notifier" mapstructure:"notifier"`
	History     HistoryConfig     `yaml:"history" mapstructure:"history"`
	Lock        LockConfig        `yaml:"lock" mapstructure:"lock"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

type PipelineConfig struct {
	Name       string        `yaml:"name" mapstructure:"name" validate:"required"`
	Retries    int           `yaml:"retries" mapstructure:"retries" validate:"min=1"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" validate:"min=0"`
	SpoolDir   string        `yaml:"spool_dir" mapstructure:"spool_dir"`
	// StartDate is the earliest logical date the scheduler will run.
	StartDate string `yaml:"start_date" mapstructure:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

type SourceConfig struct {
	URL     string        `yaml:"url" mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
}

type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint" validate:"required"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket" validate:"required"`
}

type WarehouseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" mapstructure:"dsn" validate:"required"`
}

type NotifierConfig struct {
	Kind      string         `yaml:"kind" mapstructure:"kind" validate:"oneof=telegram amqp log"`
	ImagePath string         `yaml:"image_path" mapstructure:"image_path"`
	Telegram  TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
	AMQP      AMQPConfig     `yaml:"amqp" mapstructure:"amqp"`
}

// TelegramConfig is the bot_token / chat_id pair the alert channel needs.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID   int64  `yaml:"chat_id" mapstructure:"chat_id"`
	APIURL   string `yaml:"api_url" mapstructure:"api_url" validate:"omitempty,url"`
}

type AMQPConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Queue string `yaml:"queue" mapstructure:"queue"`
}

type HistoryConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

type LockConfig struct {
	RedisAddr string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	Password  string        `yaml:"password" mapstructure:"password"`
	Key       string        `yaml:"key" mapstructure:"key"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl" validate:"gt=0"`
}

// HTTPConfig configures the API server. ColorLogs prints request lines with
// ANSI colors instead of JSON records.
type HTTPConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr" validate:"required"`
	ColorLogs bool   `yaml:"color_logs" mapstructure:"color_logs"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			Name:       "ETL",
			Retries:    model.DefaultMaxAttempts,
			RetryDelay: model.DefaultRetryDelay,
			StartDate:  "2024-08-14",
		},
		Source: SourceConfig{
			URL:     "https://api.randomdatatools.ru",
			Timeout: 30 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint: "localhost:9000",
			Bucket:   "users",
		},
		Warehouse: WarehouseConfig{Driver: "postgres"},
		Notifier: NotifierConfig{
			Kind:     NotifierTelegram,
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
			AMQP:     AMQPConfig{Queue: "pipeline.alerts"},
		},
		History: HistoryConfig{Path: "pipeline.db"},
		Lock:    LockConfig{Key: "etl:pipeline:lock", TTL: 30 * time.Minute},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// RetryPolicy is the policy every stage runs under.
func (c *Config) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{MaxAttempts: c.Pipeline.Retries, Delay: c.Pipeline.RetryDelay}
}

// StartDate parses Pipeline.StartDate. Zero when unset.
func (c *Config) StartDate() model.LogicalDate {
	d, err := model.ParseLogicalDate(c.Pipeline.StartDate)
	if err != nil {
		return model.LogicalDate{}
	}
	return d
}

// Load builds the configuration from defaults, the YAML file at path (or
// $PIPELINE_CONFIG) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays the environment, and the dotenv file beneath it, on cfg.
// Values are decoded by type, so a malformed duration, number or boolean is
// an error rather than a silent fallback.
func applyEnv(cfg *Config) error {
	dotenv, err := readDotEnv()
	if err != nil {
		return err
	}

	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("config: bind %s: %w", env, err)
		}
		if val := strings.TrimSpace(dotenv[env]); val != "" {
			v.SetDefault(key, val)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// readDotEnv reads KEY=value pairs from the dotenv file. A missing ./.env is
// not an error; a missing file named by PIPELINE_ENV_FILE is.
func readDotEnv() (map[string]string, error) {
	path, explicit := os.LookupEnv(EnvDotEnvPath)
	if !explicit || path == "" {
		path, explicit = defaultDotEnv, false
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: env file %s: %w", path, err)
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	out := make(map[string]string, len(envBindings))
	for _, env := range envBindings {
		if dv.IsSet(env) {
			out[env] = dv.GetString(env)
		}
	}
	return out, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateNotifier, NotifierConfig{})
	return v
}

// validateNotifier requires the settings of the selected channel only.
func validateNotifier(sl validator.StructLevel) {
	n := sl.Current().Interface().(NotifierConfig)
	switch n.Kind {
	case NotifierTelegram:
		if n.Telegram.BotToken == "" {
			sl.ReportError(n.Telegram.BotToken, "BotToken", "BotToken", "required_for_telegram", "")
		}
		if n.Telegram.ChatID == 0 {
			sl.ReportError(n.Telegram.ChatID, "ChatID", "ChatID", "required_for_telegram", "")
		}
	case NotifierAMQP:
		if n.AMQP.URL == "" {
			sl.ReportError(n.AMQP.URL, "URL", "URL", "required_for_amqp", "")
		}
		if n.AMQP.Queue == "" {
			sl.ReportError(n.AMQP.Queue, "Queue", "Queue", "required_for_amqp", "")
		}
	}
}

// Validate checks every field rule and the selected notifier's settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
