package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/i474232898/weather-dashboard/internal/logger"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// EnvPrefix prefixes every environment override, e.g. DASHBOARD_SERVER_PORT.
const EnvPrefix = "DASHBOARD"

// Config is the complete application configuration.
type Config struct {
	Server       ServerConfig   `mapstructure:"server"`
	HTTP         HTTPConfig     `mapstructure:"http"`
	Feeds        FeedsConfig    `mapstructure:"feeds"`
	Models       ModelsConfig   `mapstructure:"models"`
	Frames       FramesConfig   `mapstructure:"frames"`
	Alerts       AlertsConfig   `mapstructure:"alerts"`
	Playback     PlaybackConfig `mapstructure:"playback"`
	Storage      StorageConfig  `mapstructure:"storage"`
	Location     LocationConfig `mapstructure:"location"`
	Logging      LoggingConfig  `mapstructure:"logging"`
	FetchTimeout time.Duration  `mapstructure:"fetch_timeout"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" validate:"required,numeric"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HTTPConfig configures the shared outbound client.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// FeedsConfig holds the upstream endpoints.
type FeedsConfig struct {
	FramesURL     string `mapstructure:"frames_url" validate:"required,url"`
	AlertsURL     string `mapstructure:"alerts_url" validate:"required,url"`
	ForecastURL   string `mapstructure:"forecast_url" validate:"required,url"`
	AirQualityURL string `mapstructure:"air_quality_url" validate:"required,url"`
	TileHost      string `mapstructure:"tile_host" validate:"required,url"`
	TileTemplate  string `mapstructure:"tile_template" validate:"required"`
	ForecastDays  int    `mapstructure:"forecast_days" validate:"min=1,max=16"`
}

// ModelsConfig names the two fused models. An empty secondary disables fusion.
type ModelsConfig struct {
	Primary   string `mapstructure:"primary" validate:"required"`
	Secondary string `mapstructure:"secondary"`
}

type FramesConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

type AlertsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxHistory   int           `mapstructure:"max_history" validate:"min=0"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

type PlaybackConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Gated    bool          `mapstructure:"gated"`
}

// StorageConfig selects the frame cache backend. Dir holds one file per key
// for the file driver and the database file for sqlite.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=file sqlite memory"`
	Dir    string `mapstructure:"dir"`
}

// Path returns the location handed to store.Open.
func (s StorageConfig) Path() string {
	if s.Driver == "sqlite" {
		return filepath.Join(s.Dir, "frames.db")
	}
	return s.Dir
}

// LocationConfig is the optional location selected at startup.
type LocationConfig struct {
	Name  string  `mapstructure:"name"`
	Lat   float64 `mapstructure:"lat" validate:"latitude"`
	Lon   float64 `mapstructure:"lon" validate:"longitude"`
	State string  `mapstructure:"state" validate:"omitempty,len=2"`
}

// Set reports whether a startup location was configured.
func (l LocationConfig) Set() bool {
	return l.Name != "" || l.Lat != 0 || l.Lon != 0
}

func (l LocationConfig) Location() weather.Location {
	return weather.Location{Name: l.Name, Lat: l.Lat, Lon: l.Lon, State: strings.ToUpper(l.State)}
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from path (optional), a .env file and the
// environment, in increasing priority.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.user_agent", "")

	v.SetDefault("feeds.frames_url", "https://api.rainviewer.com/public/weather-maps.json")
	v.SetDefault("feeds.alerts_url", "https://api.weather.gov/alerts/active")
	v.SetDefault("feeds.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("feeds.air_quality_url", "https://air-quality-api.open-meteo.com/v1/air-quality")
	v.SetDefault("feeds.tile_host", "https://tilecache.rainviewer.com")
	v.SetDefault("feeds.tile_template", "{host}{path}/{size}/{z}/{x}/{y}/{color}/{options}.png")
	v.SetDefault("feeds.forecast_days", 7)

	v.SetDefault("models.primary", "ecmwf_ifs025")
	v.SetDefault("models.secondary", "gfs_seamless")

	v.SetDefault("frames.poll_interval", "5m")
	v.SetDefault("frames.max_age", "2h")

	v.SetDefault("alerts.poll_interval", "1m")
	v.SetDefault("alerts.max_history", 60)
	v.SetDefault("alerts.max_age", "1h")

	v.SetDefault("fetch_timeout", "30s")

	v.SetDefault("playback.interval", "500ms")
	v.SetDefault("playback.gated", false)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "./data")

	v.SetDefault("location.name", "")
	v.SetDefault("location.lat", 0.0)
	v.SetDefault("location.lon", 0.0)
	v.SetDefault("location.state", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

var validate = validator.New()

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s fails %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}

	if c.Frames.PollInterval < 10*time.Second {
		return fmt.Errorf("frames.poll_interval must be at least 10s")
	}
	if c.Alerts.PollInterval < 10*time.Second {
		return fmt.Errorf("alerts.poll_interval must be at least 10s")
	}
	if c.Frames.MaxAge < c.Frames.PollInterval {
		return fmt.Errorf("frames.max_age must not be shorter than frames.poll_interval")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if c.Playback.Interval < 50*time.Millisecond {
		return fmt.Errorf("playback.interval must be at least 50ms")
	}
	if c.Storage.Driver != "memory" && c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required for the %s driver", c.Storage.Driver)
	}
	if c.Models.Secondary != "" && c.Models.Secondary == c.Models.Primary {
		return fmt.Errorf("models.secondary must differ from models.primary")
	}
	return nil
}
