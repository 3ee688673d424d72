package eavsearch

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config consolidates settings for the search service and its binaries.
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database"`
	Tables   TableNames     `json:"tables" yaml:"tables"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Schema   SchemaConfig   `json:"schema" yaml:"schema"`
	Breaker  BreakerConfig  `json:"breaker" yaml:"breaker"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Driver          string        `json:"driver" yaml:"driver"` // pgx pool when empty; otherwise a database/sql driver name
	DSN             string        `json:"dsn" yaml:"dsn"`       // overrides the discrete fields when set
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"sslMode" yaml:"sslMode"`
	MaxConnections  int           `json:"maxConnections" yaml:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	UseIAMAuth      bool          `json:"useIAMAuth" yaml:"useIAMAuth"` // DSQL auth token as password
	Region          string        `json:"region" yaml:"region"`
}

// ConnString builds a postgres URL from the discrete fields unless DSN is set.
func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// TableNames names the two EAV side tables.
type TableNames struct {
	Attributes      string `json:"attributes" yaml:"attributes"`
	AttributeValues string `json:"attributeValues" yaml:"attributeValues"`
}

// SearchConfig contains query compilation settings
type SearchConfig struct {
	Dialect string `json:"dialect" yaml:"dialect"` // postgres or mysql
	// StrictAttributeCodes rejects searches naming attribute codes missing
	// from the definition table instead of dropping them.
	StrictAttributeCodes bool `json:"strictAttributeCodes" yaml:"strictAttributeCodes"`
	OverflowLength       int  `json:"overflowLength" yaml:"overflowLength"`
	DefaultPageSize      int  `json:"defaultPageSize" yaml:"defaultPageSize"`
	MaxPageSize          int  `json:"maxPageSize" yaml:"maxPageSize"`
}

// SchemaConfig locates the schema document: a file path or s3://bucket/key.
type SchemaConfig struct {
	Location string `json:"location" yaml:"location"`
	Region   string `json:"region" yaml:"region"`
	// Endpoint points S3 fetches at an S3-compatible store and switches to
	// path-style addressing.
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"accessKey" yaml:"accessKey"` // static credentials; the default chain when empty
	SecretKey string `json:"secretKey" yaml:"secretKey"`
}

// BreakerConfig guards the database against repeated failures.
type BreakerConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Threshold    int           `json:"threshold" yaml:"threshold"`
	Window       time.Duration `json:"window" yaml:"window"`
	OpenDuration time.Duration `json:"openDuration" yaml:"openDuration"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	LogQueries bool   `json:"logQueries" yaml:"logQueries"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "eavsearch",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Tables: TableNames{
			Attributes:      "attributes",
			AttributeValues: "attribute_values",
		},
		Search: SearchConfig{
			Dialect:         "postgres",
			OverflowLength:  255,
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			Threshold:    5,
			Window:       30 * time.Second,
			OpenDuration: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML file over the defaults and applies environment
// overrides. An empty path uses defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.Username = getEnv("DB_USER", c.Database.Username)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", c.Database.MaxConnections)
	c.Database.UseIAMAuth = getEnvBool("DB_USE_IAM_AUTH", c.Database.UseIAMAuth)
	c.Database.Region = getEnv("AWS_REGION", c.Database.Region)
	c.Tables.Attributes = getEnv("ATTRIBUTES_TABLE", c.Tables.Attributes)
	c.Tables.AttributeValues = getEnv("ATTRIBUTE_VALUES_TABLE", c.Tables.AttributeValues)
	c.Search.Dialect = getEnv("SEARCH_DIALECT", c.Search.Dialect)
	c.Search.StrictAttributeCodes = getEnvBool("SEARCH_STRICT_ATTRIBUTES", c.Search.StrictAttributeCodes)
	c.Schema.Location = getEnv("SCHEMA_LOCATION", c.Schema.Location)
	c.Schema.Region = getEnv("SCHEMA_REGION", c.Schema.Region)
	c.Schema.Endpoint = getEnv("SCHEMA_S3_ENDPOINT", c.Schema.Endpoint)
	c.Schema.AccessKey = getEnv("SCHEMA_S3_ACCESS_KEY", c.Schema.AccessKey)
	c.Schema.SecretKey = getEnv("SCHEMA_S3_SECRET_KEY", c.Schema.SecretKey)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if c.Tables.Attributes == "" {
		return &ConfigError{Field: "tables.attributes", Message: "cannot be empty"}
	}
	if c.Tables.AttributeValues == "" {
		return &ConfigError{Field: "tables.attributeValues", Message: "cannot be empty"}
	}
	switch strings.ToLower(c.Search.Dialect) {
	case "postgres", "mysql":
	default:
		return &ConfigError{Field: "search.dialect", Message: "must be 'postgres' or 'mysql'"}
	}
	if c.Search.OverflowLength <= 0 {
		return &ConfigError{Field: "search.overflowLength", Message: "must be greater than 0"}
	}
	if c.Search.DefaultPageSize <= 0 {
		return &ConfigError{Field: "search.defaultPageSize", Message: "must be greater than 0"}
	}
	if c.Search.MaxPageSize < c.Search.DefaultPageSize {
		return &ConfigError{Field: "search.maxPageSize", Message: "must be greater than or equal to defaultPageSize"}
	}
	if (c.Schema.AccessKey == "") != (c.Schema.SecretKey == "") {
		return &ConfigError{Field: "schema.accessKey", Message: "accessKey and secretKey must be set together"}
	}
	if c.Breaker.Enabled && c.Breaker.Threshold <= 0 {
		return &ConfigError{Field: "breaker.threshold", Message: "must be greater than 0 when the breaker is enabled"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
