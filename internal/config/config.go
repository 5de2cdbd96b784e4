package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Notify    NotifyConfig    `yaml:"notify"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Retention RetentionConfig `yaml:"retention"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type DBConfig struct {
	// URL takes precedence over the individual fields when set.
	URL            string        `yaml:"url"`
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"sslmode"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxConns       int32         `yaml:"max_conns"`
}

func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiry     time.Duration `yaml:"jwt_expiry"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
}

type WebhookConfig struct {
	APIKey string `yaml:"api_key"`
}

// TelephonyConfig selects the call origination backend. A REST URL wins over
// the event socket; with neither set the gateway runs in mock mode.
type TelephonyConfig struct {
	RESTURL     string        `yaml:"rest_url"`
	ESLHost     string        `yaml:"esl_host"`
	ESLPort     int           `yaml:"esl_port"`
	ESLPassword string        `yaml:"esl_password"`
	CallerID    string        `yaml:"caller_id"`
	Timeout     time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	BodyLimit int           `yaml:"body_limit"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         int    `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RetentionConfig controls pruning of old event logs. Zero MaxAge disables it.
type RetentionConfig struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then IOTGW_* environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: "8000"},
		DB: DBConfig{
			Host:           "localhost",
			Port:           "5432",
			Name:           "iot_gateway",
			User:           "postgres",
			Password:       "postgres",
			SSLMode:        "disable",
			ConnectTimeout: 5 * time.Second,
			MaxConns:       10,
		},
		Auth: AuthConfig{
			JWTSecret:     "change-me-in-production",
			JWTExpiry:     24 * time.Hour,
			AdminEmail:    "admin@iotgateway.local",
			AdminPassword: "admin",
		},
		Webhook: WebhookConfig{APIKey: "change-me-in-production"},
		Telephony: TelephonyConfig{
			ESLPort:     8021,
			ESLPassword: "ClueCon",
			CallerID:    "IoT-Gateway",
			Timeout:     30 * time.Second,
		},
		Notify: NotifyConfig{Timeout: 10 * time.Second, BodyLimit: 500},
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			ClientID:    "iotgateway",
			QoS:         1,
			TopicPrefix: "iotgw",
		},
		InfluxDB: InfluxDBConfig{
			Org:           "iotgateway",
			Bucket:        "dispatch",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Retention: RetentionConfig{Interval: time.Hour},
		CORS:      CORSConfig{AllowedOrigins: "http://localhost:3000"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "IOTGW_HOST")
	setString(&cfg.Server.Port, "IOTGW_PORT")

	setString(&cfg.DB.URL, "IOTGW_DATABASE_URL")
	setString(&cfg.DB.Host, "IOTGW_DB_HOST")
	setString(&cfg.DB.Port, "IOTGW_DB_PORT")
	setString(&cfg.DB.Name, "IOTGW_DB_NAME")
	setString(&cfg.DB.User, "IOTGW_DB_USER")
	setString(&cfg.DB.Password, "IOTGW_DB_PASSWORD")
	setString(&cfg.DB.SSLMode, "IOTGW_DB_SSLMODE")

	setString(&cfg.Auth.JWTSecret, "IOTGW_JWT_SECRET")
	setString(&cfg.Auth.AdminEmail, "IOTGW_ADMIN_EMAIL")
	setString(&cfg.Auth.AdminPassword, "IOTGW_ADMIN_PASSWORD")
	setString(&cfg.Webhook.APIKey, "IOTGW_WEBHOOK_API_KEY")

	setString(&cfg.Telephony.RESTURL, "IOTGW_FREESWITCH_REST_URL")
	setString(&cfg.Telephony.ESLHost, "IOTGW_FREESWITCH_HOST")
	setString(&cfg.Telephony.ESLPassword, "IOTGW_FREESWITCH_PASSWORD")
	setString(&cfg.Telephony.CallerID, "IOTGW_CALLER_ID")

	setString(&cfg.MQTT.Host, "IOTGW_MQTT_HOST")
	setString(&cfg.MQTT.Username, "IOTGW_MQTT_USERNAME")
	setString(&cfg.MQTT.Password, "IOTGW_MQTT_PASSWORD")

	setString(&cfg.InfluxDB.URL, "IOTGW_INFLUXDB_URL")
	setString(&cfg.InfluxDB.Token, "IOTGW_INFLUXDB_TOKEN")

	setString(&cfg.CORS.AllowedOrigins, "IOTGW_CORS_ORIGINS")
	setString(&cfg.Logging.Level, "IOTGW_LOG_LEVEL")
	setString(&cfg.Logging.Format, "IOTGW_LOG_FORMAT")

	if v := os.Getenv("IOTGW_FREESWITCH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IOTGW_FREESWITCH_PORT: %w", err)
		}
		cfg.Telephony.ESLPort = port
	}
	if v := os.Getenv("IOTGW_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid IOTGW_MQTT_ENABLED: %w", err)
		}
		cfg.MQTT.Enabled = enabled
	}
	if v := os.Getenv("IOTGW_INFLUXDB_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid IOTGW_INFLUXDB_ENABLED: %w", err)
		}
		cfg.InfluxDB.Enabled = enabled
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"IOTGW_JWT_EXPIRY", &cfg.Auth.JWTExpiry},
		{"IOTGW_TELEPHONY_TIMEOUT", &cfg.Telephony.Timeout},
		{"IOTGW_NOTIFY_TIMEOUT", &cfg.Notify.Timeout},
		{"IOTGW_LOG_RETENTION", &cfg.Retention.MaxAge},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Webhook.APIKey == "" {
		errs = append(errs, errors.New("webhook.api_key must not be empty"))
	}
	if c.Telephony.Timeout <= 0 {
		errs = append(errs, errors.New("telephony.timeout must be positive"))
	}
	if strings.ContainsAny(c.Telephony.CallerID, " \t\r\n'{},") {
		errs = append(errs, fmt.Errorf("telephony.caller_id %q must not contain whitespace, quotes, braces or commas", c.Telephony.CallerID))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("notify.timeout must be positive"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}
	if c.Retention.MaxAge > 0 && c.Retention.Interval <= 0 {
		errs = append(errs, errors.New("retention.interval must be positive when retention is enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
