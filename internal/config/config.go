// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/leafscan/internal/detector"
	"github.com/SyedDaiam9101/leafscan/internal/imageprep"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "LEAFSCAN"

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port          int    `mapstructure:"port"`
	MetricsPort   int    `mapstructure:"metrics_port"`
	MaxImageBytes int    `mapstructure:"max_image_bytes"`
	LogLevel      string `mapstructure:"log_level"`

	// Model configuration
	Model         string `mapstructure:"model"`
	ModelVersion  string `mapstructure:"model_version"`
	ONNXLibrary   string `mapstructure:"onnx_library"`
	InputName     string `mapstructure:"input_name"`
	OutputName    string `mapstructure:"output_name"`
	NumClasses    int    `mapstructure:"num_classes"`
	ImageSize     int    `mapstructure:"image_size"`
	Layout        string `mapstructure:"layout"`
	Interpolation string `mapstructure:"interpolation"`

	// Prediction cache
	Redis    string        `mapstructure:"redis"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

// Flags carries command-line overrides. Zero values leave the loaded
// configuration untouched.
type Flags struct {
	ConfigFile  string
	Port        int
	MetricsPort int
	Model       string
	Redis       string
	UseMock     bool
	Debug       bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 50051)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("max_image_bytes", 16<<20)
	v.SetDefault("log_level", "info")
	v.SetDefault("model", detector.DefaultModelPath)
	v.SetDefault("model_version", "default")
	v.SetDefault("onnx_library", "")
	v.SetDefault("input_name", "")
	v.SetDefault("output_name", "")
	v.SetDefault("num_classes", 0)
	v.SetDefault("image_size", imageprep.DefaultSize)
	v.SetDefault("layout", "nhwc")
	v.SetDefault("interpolation", "nearest")
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", 24*time.Hour)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("use_mock_inference", EnvPrefix+"_USE_MOCK")
	return v
}

// addSearchPaths looks for config.yaml in the working directory, then
// /etc/leafscan, then $HOME/.leafscan.
func addSearchPaths(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/leafscan/")
	v.AddConfigPath("$HOME/.leafscan")
}

// Load loads configuration from flags, environment variables, and optional config file.
// Priority (highest to lowest): flags > env vars > config file > defaults
func Load(flags Flags) (*Config, error) {
	v := newViper()

	if flags.ConfigFile != "" {
		v.SetConfigFile(flags.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", flags.ConfigFile, err)
		}
	} else {
		addSearchPaths(v)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	applyFlags(v, flags)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A collector endpoint implies tracing.
	if cfg.OTELEndpoint != "" {
		cfg.OTELEnabled = true
	}

	return &cfg, nil
}

func applyFlags(v *viper.Viper, f Flags) {
	if f.Port > 0 {
		v.Set("port", f.Port)
	}
	if f.MetricsPort > 0 {
		v.Set("metrics_port", f.MetricsPort)
	}
	if f.Model != "" {
		v.Set("model", f.Model)
	}
	if f.Redis != "" {
		v.Set("redis", f.Redis)
	}
	if f.UseMock {
		v.Set("use_mock_inference", true)
	}
	if f.Debug {
		v.Set("log_level", "debug")
	}
}

// ConfigFileUsed reports which file Load would read for flags, or "" when
// none is found.
func ConfigFileUsed(flags Flags) string {
	if flags.ConfigFile != "" {
		return flags.ConfigFile
	}
	v := newViper()
	addSearchPaths(v)
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Preprocessor builds the image preprocessor described by the config.
func (c *Config) Preprocessor() (imageprep.Preprocessor, error) {
	layout, err := imageprep.ParseLayout(c.Layout)
	if err != nil {
		return imageprep.Preprocessor{}, err
	}
	interp, err := imageprep.ParseInterpolation(c.Interpolation)
	if err != nil {
		return imageprep.Preprocessor{}, err
	}
	return imageprep.New(c.ImageSize, layout, interp), nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	if c.Model == "" && !c.UseMockInference {
		return fmt.Errorf("model path is required when not using mock inference")
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("invalid image size: %d", c.ImageSize)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("invalid max image bytes: %d", c.MaxImageBytes)
	}
	if c.NumClasses < 0 {
		return fmt.Errorf("invalid class count: %d", c.NumClasses)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("invalid cache ttl: %s", c.CacheTTL)
	}
	if _, err := c.Preprocessor(); err != nil {
		return err
	}
	return nil
}
