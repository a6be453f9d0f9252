package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	dbDriverPostgres = "postgres"
	dbDriverSQLite   = "sqlite"
)

type Config struct {
	HttpPort     int    `json:"http_port" yaml:"http_port"`
	DbDriver     string `json:"db_driver" yaml:"db_driver"`
	DbConnString string `json:"db_conn_string" yaml:"db_conn_string"`
	// RedisAddr is optional; without it duplicates are caught by the database alone.
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`

	GatewayBaseURL    string        `json:"gateway_base_url" yaml:"gateway_base_url"`
	GatewayTimeoutStr string        `json:"gateway_timeout" yaml:"gateway_timeout"`
	GatewayTimeout    time.Duration `json:"-" yaml:"-"`
	GatewayMaxRetry   int           `json:"gateway_max_retry" yaml:"gateway_max_retry"`
	SendTimeoutStr    string        `json:"send_timeout" yaml:"send_timeout"`
	SendTimeout       time.Duration `json:"-" yaml:"-"`

	InboundDedupeTTLStr      string        `json:"inbound_dedupe_ttl" yaml:"inbound_dedupe_ttl"`
	InboundDedupeTTL         time.Duration `json:"-" yaml:"-"`
	ValidateWebhookSignature bool          `json:"validate_webhook_signature" yaml:"validate_webhook_signature"`
	WebhookPublicURL         string        `json:"webhook_public_url" yaml:"webhook_public_url"`

	AwsSecretsEnabled bool `json:"aws_secrets_enabled" yaml:"aws_secrets_enabled"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// ReadConfig reads the configuration file, json or yaml by extension, and
// applies environment overrides.
func ReadConfig(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HttpPort:  8080,
		DbDriver:  dbDriverPostgres,
		LogFormat: "text",
	}

	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	default:
		err = json.Unmarshal(content, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}

	if err = cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err = cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DB_CONN_STRING"); v != "" {
		c.DbConnString = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid int for env HTTP_PORT: %s", v)
		}
		c.HttpPort = port
	}
	return nil
}

func (c *Config) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"gateway_timeout", c.GatewayTimeoutStr, &c.GatewayTimeout},
		{"send_timeout", c.SendTimeoutStr, &c.SendTimeout},
		{"inbound_dedupe_ttl", c.InboundDedupeTTLStr, &c.InboundDedupeTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.HttpPort <= 0 || c.HttpPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port out of range: %d", c.HttpPort))
	}
	if c.DbDriver != dbDriverPostgres && c.DbDriver != dbDriverSQLite {
		errs = append(errs, fmt.Errorf("unsupported db_driver %q", c.DbDriver))
	}
	if c.DbConnString == "" {
		errs = append(errs, errors.New("db_conn_string is required"))
	}
	if c.GatewayMaxRetry < 0 {
		errs = append(errs, errors.New("gateway_max_retry must be >= 0"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unsupported log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
