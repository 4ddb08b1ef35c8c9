package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "VIBMON"

// Config конфигурация приложения
type Config struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	MaxMeasurements  int           `mapstructure:"max_measurements"`
	AnomalyThreshold float64       `mapstructure:"anomaly_threshold"`
	MaxReadings      int           `mapstructure:"max_readings"`
	MaxPayloadBytes  int64         `mapstructure:"max_payload_bytes"`
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	SubmitTimeout    time.Duration `mapstructure:"submit_timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`

	Reference ReferenceConfig `mapstructure:"reference"`
	S3        S3Config        `mapstructure:"s3"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Log       LogConfig       `mapstructure:"log"`
}

// ReferenceConfig где лежит эталон
type ReferenceConfig struct {
	Location    string        `mapstructure:"location"`
	Eager       bool          `mapstructure:"eager"`
	NormalKey   string        `mapstructure:"normal_key"`
	AbnormalKey string        `mapstructure:"abnormal_key"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

// S3Config доступ к S3-совместимому хранилищу
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
}

// MQTTConfig прием пакетов через MQTT; пустой broker отключает
type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	Topic        string `mapstructure:"topic"`
	VerdictTopic string `mapstructure:"verdict_topic"`
	QoS          int    `mapstructure:"qos"`
}

// LogConfig уровень и формат логов
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"listen_addr":            ":1337",
	"max_measurements":       128,
	"anomaly_threshold":      0.4,
	"max_readings":           4096,
	"max_payload_bytes":      1 << 20,
	"workers":                1,
	"queue_size":             16,
	"submit_timeout":         10 * time.Second,
	"rate_limit":             0.0,
	"rate_burst":             1,
	"shutdown_timeout":       30 * time.Second,
	"reference.location":     "",
	"reference.eager":        true,
	"reference.normal_key":   "normal_fft",
	"reference.abnormal_key": "abnormal_fft",
	"reference.load_timeout": 30 * time.Second,
	"s3.endpoint":            "",
	"s3.access_key":          "",
	"s3.secret_key":          "",
	"s3.region":              "",
	"s3.secure":              true,
	"mqtt.broker":            "",
	"mqtt.client_id":         "vibration-monitor",
	"mqtt.topic":             "sensors/+/burst",
	"mqtt.verdict_topic":     "sensors/verdicts",
	"mqtt.qos":               0,
	"log.level":              "info",
	"log.format":             "console",
}

// Load собирает конфигурацию: значения по умолчанию, файл, окружение, флаги.
// args - аргументы командной строки без имени программы.
func Load(args []string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	fs := pflag.NewFlagSet("vibration-monitor", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", os.Getenv(EnvPrefix+"_CONFIG"), "Path to config file (yaml, toml or json)")
	fs.StringP("listen", "l", "", "HTTP listen address")
	fs.IntP("port", "p", 0, "HTTP port (shorthand for --listen :PORT)")
	fs.String("reference", "", "Reference template location (path, file://, s3://, redis://)")
	fs.Int("max-measurements", 0, "Truncation window size")
	fs.Float64("threshold", 0, "Anomaly threshold for the fault index")
	fs.String("mqtt-broker", "", "MQTT broker address (host:port), empty disables MQTT")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.Bool("debug", false, "Shorthand for --log-level debug")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Флаги перекрывают файл и окружение
	bindings := map[string]string{
		"listen":           "listen_addr",
		"reference":        "reference.location",
		"max-measurements": "max_measurements",
		"threshold":        "anomaly_threshold",
		"mqtt-broker":      "mqtt.broker",
		"log-level":        "log.level",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	if fs.Changed("port") {
		port, _ := fs.GetInt("port")
		v.Set("listen_addr", fmt.Sprintf(":%d", port))
	}
	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("log.level", "debug")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения
func (c *Config) Validate() error {
	var errs []error
	if c.MaxMeasurements <= 0 {
		errs = append(errs, fmt.Errorf("max_measurements must be positive, got %d", c.MaxMeasurements))
	}
	if c.AnomalyThreshold < -1 || c.AnomalyThreshold > 1 {
		errs = append(errs, fmt.Errorf("anomaly_threshold must be within [-1, 1], got %v", c.AnomalyThreshold))
	}
	if strings.TrimSpace(c.Reference.Location) == "" {
		errs = append(errs, errors.New("reference.location is required"))
	}
	if c.Reference.LoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("reference.load_timeout must be > 0, got %v", c.Reference.LoadTimeout))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be >= 1, got %d", c.QueueSize))
	}
	if c.MaxReadings < c.MaxMeasurements {
		errs = append(errs, fmt.Errorf("max_readings (%d) must be >= max_measurements (%d)", c.MaxReadings, c.MaxMeasurements))
	}
	if c.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_payload_bytes must be > 0, got %d", c.MaxPayloadBytes))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must be >= 0, got %v", c.RateLimit))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 1 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0 or 1, got %d", c.MQTT.QoS))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ExpectedRows число строк эталона для текущего окна
func (c *Config) ExpectedRows() int {
	return c.MaxMeasurements / 2
}
