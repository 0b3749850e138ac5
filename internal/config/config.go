package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrConfigMissing is returned by Validate when a required setting is absent.
var ErrConfigMissing = eris.New("config: required setting missing")

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Speedtest SpeedtestConfig `yaml:"speedtest" mapstructure:"speedtest"`
	Geo       GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Calendar  CalendarConfig  `yaml:"calendar" mapstructure:"calendar"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the warehouse connection.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	Host            string `yaml:"host" mapstructure:"host"`
	Port            int    `yaml:"port" mapstructure:"port"`
	Name            string `yaml:"name" mapstructure:"name"`
	User            string `yaml:"user" mapstructure:"user"`
	Password        string `yaml:"password" mapstructure:"password"`
	SSLMode         string `yaml:"sslmode" mapstructure:"sslmode"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
	MaxConnIdleSecs int    `yaml:"max_conn_idle_secs" mapstructure:"max_conn_idle_secs"`
}

// SpeedtestConfig configures the speedtest CLI invocation.
type SpeedtestConfig struct {
	BinPath     string `yaml:"bin_path" mapstructure:"bin_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ServerID    int64  `yaml:"server_id" mapstructure:"server_id"`
}

// GeoConfig configures server geolocation lookups.
type GeoConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Retry       string  `yaml:"retry" mapstructure:"retry"` // never | transient | always
}

// CalendarConfig configures the local time dimension.
type CalendarConfig struct {
	Timezone          string `yaml:"timezone" mapstructure:"timezone"`
	Country           string `yaml:"country" mapstructure:"country"`
	ExtraHolidaysFile string `yaml:"extra_holidays_file" mapstructure:"extra_holidays_file"`
}

// IngestConfig configures the warehouse writer.
type IngestConfig struct {
	DedupeFacts bool `yaml:"dedupe_facts" mapstructure:"dedupe_facts"`
}

// ScheduleConfig configures watch mode.
type ScheduleConfig struct {
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// DashboardConfig configures dashboard defaults.
type DashboardConfig struct {
	DefaultDays    int     `yaml:"default_days" mapstructure:"default_days"`
	ISPPromiseMbps float64 `yaml:"isp_promise_mbps" mapstructure:"isp_promise_mbps"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Timeout returns the command timeout as a duration.
func (c SpeedtestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the lookup timeout as a duration.
func (c GeoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// DSN returns the connection string for the configured driver. DatabaseURL
// wins over the individual host/port/name/user/password settings.
func (c StoreConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.Driver == "sqlite" {
		return "speedtrack.db"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPEEDTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.host", "127.0.0.1")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.name", "speedtrack")
	v.SetDefault("store.user", "speedtrack")
	v.SetDefault("store.password", "")
	v.SetDefault("store.sslmode", "disable")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_idle_secs", 300)
	v.SetDefault("speedtest.bin_path", "speedtest")
	v.SetDefault("speedtest.timeout_secs", 60)
	v.SetDefault("speedtest.server_id", 0)
	v.SetDefault("geo.base_url", "https://ipapi.co")
	v.SetDefault("geo.timeout_secs", 8)
	v.SetDefault("geo.rate_per_sec", 1.0)
	v.SetDefault("geo.retry", "never")
	v.SetDefault("calendar.timezone", "Africa/Maseru")
	v.SetDefault("calendar.country", "LS")
	v.SetDefault("calendar.extra_holidays_file", "")
	v.SetDefault("ingest.dedupe_facts", true)
	v.SetDefault("schedule.cron", "@every 1h")
	v.SetDefault("dashboard.default_days", 7)
	v.SetDefault("dashboard.isp_promise_mbps", 35.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings needed before any database or network work.
// A postgres store without database_url or password wraps ErrConfigMissing.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		// Host, name and user have defaults; the password never does.
		if c.Store.DatabaseURL == "" && c.Store.Password == "" {
			return eris.Wrapf(ErrConfigMissing, "store.password (SPEEDTRACK_%s)", envName("store.password"))
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}

	switch c.Geo.Retry {
	case "never", "transient", "always":
	default:
		return eris.Errorf("config: geo.retry must be never, transient or always, got %q", c.Geo.Retry)
	}

	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return eris.Wrapf(err, "config: calendar.timezone %q", c.Calendar.Timezone)
	}
	if c.Speedtest.TimeoutSecs <= 0 {
		return eris.New("config: speedtest.timeout_secs must be positive")
	}
	return nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// String renders the store target without the password, for logs.
func (c StoreConfig) String() string {
	if c.Driver == "sqlite" {
		return fmt.Sprintf("sqlite:%s", c.DSN())
	}
	if c.DatabaseURL != "" {
		if u, err := url.Parse(c.DatabaseURL); err == nil {
			return u.Redacted()
		}
		return "postgres:<unparseable url>"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
}
