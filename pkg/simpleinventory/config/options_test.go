package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "inventory", cfg.DBSchema)
	assert.Equal(t, RecordStoreMemory, cfg.Records.Type)
	assert.Equal(t, AssetStoreFS, cfg.Assets.Type)
	assert.Equal(t, "./data/photos", cfg.Assets.BaseDir)
	assert.Equal(t, DefaultMaxUploadBytes, cfg.MaxUploadBytes)
	assert.True(t, cfg.EnableEventLogging)
}

func TestOptions(t *testing.T) {
	logger := slog.Default()

	cfg, err := Load(
		WithPort("9999"),
		WithEnvironment("testing"),
		WithLogLevel("WARN"),
		WithLogger(logger),
		WithDatabaseURL("badger://:memory:"),
		WithDatabaseSchema("stock"),
		WithFilesystemAssets("/tmp/photos", true),
		WithMaxUploadBytes(512),
		WithEventLogging(false),
		WithAWSCredentials("eu-central-1", "id", "secret"),
	)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "testing", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Same(t, logger, cfg.Logger)
	assert.Equal(t, RecordStoreConfig{Type: RecordStoreBadger, Path: ":memory:"}, cfg.Records)
	assert.Equal(t, "stock", cfg.DBSchema)
	assert.Equal(t, AssetStoreConfig{Type: AssetStoreFS, BaseDir: "/tmp/photos", Sharded: true}, cfg.Assets)
	assert.Equal(t, int64(512), cfg.MaxUploadBytes)
	assert.False(t, cfg.EnableEventLogging)
	assert.Equal(t, "eu-central-1", cfg.AWS.Region)
}

func TestWithStorageURL(t *testing.T) {
	cfg, err := Load(WithStorageURL("s3://photos/items?region=us-west-2"))
	require.NoError(t, err)
	assert.Equal(t, AssetStoreS3, cfg.Assets.Type)
	assert.Equal(t, "photos", cfg.Assets.Bucket)
	assert.Equal(t, "items", cfg.Assets.Prefix)
	assert.Equal(t, "us-west-2", cfg.Assets.Region)

	_, err = Load(WithStorageURL("ftp://nowhere"))
	assert.Error(t, err)
}

func TestOptionErrors(t *testing.T) {
	tests := []struct {
		name   string
		option Option
	}{
		{"empty port", WithPort("")},
		{"empty environment", WithEnvironment("")},
		{"unknown log level", WithLogLevel("loud")},
		{"bad database url", WithDatabaseURL("mongodb://localhost")},
		{"empty content dir", WithFilesystemAssets("", false)},
		{"s3 without bucket", WithS3Assets(AssetStoreConfig{})},
		{"zero upload limit", WithMaxUploadBytes(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.option)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"missing port", func(c *ServerConfig) { c.Port = "" }},
		{"unknown record store", func(c *ServerConfig) { c.Records.Type = "mysql" }},
		{"jsonfile without path", func(c *ServerConfig) { c.Records = RecordStoreConfig{Type: RecordStoreJSONFile} }},
		{"postgres without url", func(c *ServerConfig) { c.Records = RecordStoreConfig{Type: RecordStorePostgres} }},
		{"dynamodb without table", func(c *ServerConfig) { c.Records = RecordStoreConfig{Type: RecordStoreDynamoDB} }},
		{"unknown asset store", func(c *ServerConfig) { c.Assets.Type = "ftp" }},
		{"fs without dir", func(c *ServerConfig) { c.Assets.BaseDir = "" }},
		{"s3 without bucket", func(c *ServerConfig) { c.Assets = AssetStoreConfig{Type: AssetStoreS3} }},
		{"negative upload limit", func(c *ServerConfig) { c.MaxUploadBytes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
