package eavsearch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "attributes", cfg.Tables.Attributes)
	assert.Equal(t, "attribute_values", cfg.Tables.AttributeValues)
	assert.Equal(t, "postgres", cfg.Search.Dialect)
	assert.Equal(t, 255, cfg.Search.OverflowLength)
	assert.Equal(t, 20, cfg.Search.DefaultPageSize)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, "postgres://postgres:@localhost:5432/eavsearch?sslmode=disable", cfg.Database.ConnString())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
database:
  host: db.internal
  port: 6432
  maxConnections: 8
  connMaxLifetime: 1m
tables:
  attributes: attr_defs
search:
  dialect: mysql
  strictAttributeCodes: true
  maxPageSize: 50
breaker:
  threshold: 3
  window: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("DB_NAME", "catalog")
	t.Setenv("ATTRIBUTE_VALUES_TABLE", "attr_values")
	t.Setenv("SCHEMA_S3_ENDPOINT", "http://localhost:9000")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "catalog", cfg.Database.Database)
	assert.Equal(t, 8, cfg.Database.MaxConnections)
	assert.Equal(t, time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "attr_defs", cfg.Tables.Attributes)
	assert.Equal(t, "attr_values", cfg.Tables.AttributeValues)
	assert.Equal(t, "mysql", cfg.Search.Dialect)
	assert.True(t, cfg.Search.StrictAttributeCodes)
	assert.Equal(t, 50, cfg.Search.MaxPageSize)
	assert.Equal(t, 20, cfg.Search.DefaultPageSize, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Breaker.Threshold)
	assert.Equal(t, 15*time.Second, cfg.Breaker.Window)
	assert.Equal(t, "http://localhost:9000", cfg.Schema.Endpoint)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "parse config")

	t.Setenv("SEARCH_DIALECT", "oracle")
	_, err = LoadConfig("")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "search.dialect", cfgErr.Field)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max connections", func(c *Config) { c.Database.MaxConnections = 0 }, "database.maxConnections"},
		{"attributes table", func(c *Config) { c.Tables.Attributes = "" }, "tables.attributes"},
		{"values table", func(c *Config) { c.Tables.AttributeValues = "" }, "tables.attributeValues"},
		{"dialect", func(c *Config) { c.Search.Dialect = "sqlserver" }, "search.dialect"},
		{"overflow", func(c *Config) { c.Search.OverflowLength = 0 }, "search.overflowLength"},
		{"default page size", func(c *Config) { c.Search.DefaultPageSize = 0 }, "search.defaultPageSize"},
		{"max page size", func(c *Config) { c.Search.MaxPageSize = 10 }, "search.maxPageSize"},
		{"breaker threshold", func(c *Config) { c.Breaker.Threshold = 0 }, "breaker.threshold"},
		{"half of the s3 credentials", func(c *Config) { c.Schema.AccessKey = "key" }, "schema.accessKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	cfg := DefaultConfig()
	cfg.Breaker.Enabled = false
	cfg.Breaker.Threshold = 0
	assert.NoError(t, cfg.Validate())
}

func TestConnStringPrefersDSN(t *testing.T) {
	c := DatabaseConfig{DSN: "postgres://x@y/z", Host: "ignored"}
	assert.Equal(t, "postgres://x@y/z", c.ConnString())
}
