// Package config loads markerpipe configuration from a JSON file with
// viper, providing typed accessors per subsystem.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PipelineConfig holds update-pipeline settings.
type PipelineConfig struct {
	DebounceMs   int `json:"debounceMs" mapstructure:"debounceMs"`
	ResultBuffer int `json:"resultBuffer" mapstructure:"resultBuffer"`
}

// DebounceWindow returns the debounce quiet period.
func (c PipelineConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// CacheConfig holds image-cache settings.
type CacheConfig struct {
	Capacity     int `json:"capacity" mapstructure:"capacity"`
	WarmupBudget int `json:"warmupBudget" mapstructure:"warmupBudget"`
}

// MotionConfig holds interpolation settings.
type MotionConfig struct {
	DurationMs int `json:"durationMs" mapstructure:"durationMs"`
	TickMs     int `json:"tickMs" mapstructure:"tickMs"`
}

// Duration returns the interpolation window.
func (c MotionConfig) Duration() time.Duration {
	return time.Duration(c.DurationMs) * time.Millisecond
}

// Tick returns the animation tick cadence.
func (c MotionConfig) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// MetadataConfig holds entity metadata store settings.
type MetadataConfig struct {
	Type     string `json:"type" mapstructure:"type"` // memory, sqlite, postgres
	Path     string `json:"path" mapstructure:"path"` // sqlite file path
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// TelemetryConfig holds telemetry feed settings.
type TelemetryConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// InfluxConfig holds stats-export settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// OtelConfig holds OpenTelemetry settings.
type OtelConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool   `json:"insecure" mapstructure:"insecure"`
	BatchTimeoutMs int    `json:"batchTimeoutMs" mapstructure:"batchTimeoutMs"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./markerpipe-logs")

	viper.SetDefault("pipeline.debounceMs", 300)
	viper.SetDefault("pipeline.resultBuffer", 16)

	viper.SetDefault("cache.capacity", 128)
	viper.SetDefault("cache.warmupBudget", 8)

	viper.SetDefault("motion.durationMs", 1200)
	viper.SetDefault("motion.tickMs", 200)

	viper.SetDefault("metadata.type", "sqlite")
	viper.SetDefault("metadata.path", "./markerpipe.db")
	viper.SetDefault("metadata.host", "localhost")
	viper.SetDefault("metadata.port", "5432")
	viper.SetDefault("metadata.username", "postgres")
	viper.SetDefault("metadata.password", "postgres")
	viper.SetDefault("metadata.database", "markerpipe")

	viper.SetDefault("telemetry.url", "ws://localhost:8090/feed")
	viper.SetDefault("telemetry.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "markerpipe-metrics")
	viper.SetDefault("influx.bucket", "marker_pipeline")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)
	viper.SetDefault("otel.batchTimeoutMs", 5000)

	viper.SetConfigName("markerpipe.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Pipeline returns the pipeline configuration section.
func Pipeline() PipelineConfig {
	var c PipelineConfig
	_ = viper.UnmarshalKey("pipeline", &c)
	return c
}

// Cache returns the image-cache configuration section.
func Cache() CacheConfig {
	var c CacheConfig
	_ = viper.UnmarshalKey("cache", &c)
	return c
}

// Motion returns the interpolation configuration section.
func Motion() MotionConfig {
	var c MotionConfig
	_ = viper.UnmarshalKey("motion", &c)
	return c
}

// Metadata returns the metadata store configuration section.
func Metadata() MetadataConfig {
	var c MetadataConfig
	_ = viper.UnmarshalKey("metadata", &c)
	return c
}

// Telemetry returns the telemetry feed configuration section.
func Telemetry() TelemetryConfig {
	var c TelemetryConfig
	_ = viper.UnmarshalKey("telemetry", &c)
	return c
}

// Influx returns the stats-export configuration section.
func Influx() InfluxConfig {
	var c InfluxConfig
	_ = viper.UnmarshalKey("influx", &c)
	return c
}

// Otel returns the OpenTelemetry configuration section.
func Otel() OtelConfig {
	var c OtelConfig
	_ = viper.UnmarshalKey("otel", &c)
	return c
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
