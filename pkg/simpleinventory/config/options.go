package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the minimum log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "warning", "error":
			c.LogLevel = strings.ToLower(level)
			return nil
		}
		return fmt.Errorf("unknown log level: %s", level)
	}
}

// WithLogger sets the logger handed to the service and its stores
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServerConfig) error {
		c.Logger = logger
		return nil
	}
}

// WithDatabaseURL selects the record store from a DATABASE_URL style string
func WithDatabaseURL(raw string) Option {
	return func(c *ServerConfig) error {
		records, err := ParseDatabaseURL(raw)
		if err != nil {
			return err
		}
		c.Records = records
		return nil
	}
}

// WithRecordStore sets the record store configuration directly
func WithRecordStore(records RecordStoreConfig) Option {
	return func(c *ServerConfig) error {
		c.Records = records
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithStorageURL selects the asset store from a STORAGE_URL style string
func WithStorageURL(raw string) Option {
	return func(c *ServerConfig) error {
		assets, err := ParseStorageURL(raw)
		if err != nil {
			return err
		}
		c.Assets = assets
		return nil
	}
}

// WithFilesystemAssets stores photos in a local content directory
func WithFilesystemAssets(baseDir string, sharded bool) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Assets = AssetStoreConfig{
			Type:    AssetStoreFS,
			BaseDir: baseDir,
			Sharded: sharded,
		}
		return nil
	}
}

// WithS3Assets stores photos in an S3 bucket
func WithS3Assets(assets AssetStoreConfig) Option {
	return func(c *ServerConfig) error {
		if assets.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		assets.Type = AssetStoreS3
		c.Assets = assets
		return nil
	}
}

// WithAWSCredentials sets static credentials for the s3 and dynamodb backends
func WithAWSCredentials(region, accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		if region != "" {
			c.AWS.Region = region
		}
		c.AWS.AccessKeyID = accessKeyID
		c.AWS.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithMaxUploadBytes limits the size of uploaded request bodies
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("max upload bytes must be positive, got: %d", n)
		}
		c.MaxUploadBytes = n
		return nil
	}
}

// WithEventLogging enables or disables logging of item lifecycle events
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
