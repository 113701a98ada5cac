package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/assetkey"
	fsassets "github.com/tendant/simple-inventory/pkg/simpleinventory/assets/fs"
	s3assets "github.com/tendant/simple-inventory/pkg/simpleinventory/assets/s3"
	badgerrecords "github.com/tendant/simple-inventory/pkg/simpleinventory/records/badger"
	dynamorecords "github.com/tendant/simple-inventory/pkg/simpleinventory/records/dynamodb"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/records/jsonfile"
	pgrecords "github.com/tendant/simple-inventory/pkg/simpleinventory/records/postgres"
	sqliterecords "github.com/tendant/simple-inventory/pkg/simpleinventory/records/sqlite"
)

// Record store types
const (
	RecordStoreMemory   = "memory"
	RecordStoreJSONFile = "jsonfile"
	RecordStorePostgres = "postgres"
	RecordStoreSQLite   = "sqlite"
	RecordStoreBadger   = "badger"
	RecordStoreDynamoDB = "dynamodb"
)

// Asset store types
const (
	AssetStoreFS = "fs"
	AssetStoreS3 = "s3"
)

// DefaultMaxUploadBytes caps photo uploads at 10 MiB.
const DefaultMaxUploadBytes int64 = 10 << 20

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",
		DBSchema:    "inventory",
		Records: RecordStoreConfig{
			Type: RecordStoreMemory,
		},
		Assets: AssetStoreConfig{
			Type:    AssetStoreFS,
			BaseDir: "./data/photos",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		MaxUploadBytes:     DefaultMaxUploadBytes,
		EnableEventLogging: true,
	}
}

// ServerConfig represents configuration for the inventory service and its HTTP server
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// Record store configuration
	Records  RecordStoreConfig
	DBSchema string // Postgres schema to use (default: inventory)

	// Photo asset store configuration
	Assets AssetStoreConfig

	// Shared AWS settings for the s3 and dynamodb backends
	AWS AWSConfig

	// Server options
	MaxUploadBytes     int64
	EnableEventLogging bool

	// Logger is handed to the service and the stores that log. Defaults to slog.Default().
	Logger *slog.Logger

	closers []func() error
}

// RecordStoreConfig selects and configures the record store variant
type RecordStoreConfig struct {
	Type string // memory, jsonfile, postgres, sqlite, badger, dynamodb

	URL  string // postgres connection string
	Path string // jsonfile file, sqlite database file or badger directory

	// DynamoDB
	Table       string
	Region      string // empty uses AWS.Region
	Endpoint    string
	CreateTable bool
}

// AWSConfig holds region and static credentials. Empty credentials fall
// back to the SDK's default chain.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// AssetStoreConfig selects and configures the photo asset store
type AssetStoreConfig struct {
	Type string // fs, s3

	// Filesystem
	BaseDir string
	Sharded bool // spread assets over hashed subdirectories

	// S3; an empty Region uses AWS.Region
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	CreateBucket bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Records.Type {
	case RecordStoreMemory:
	case RecordStoreJSONFile, RecordStoreSQLite, RecordStoreBadger:
		if c.Records.Path == "" {
			return fmt.Errorf("a path is required for the %s record store", c.Records.Type)
		}
	case RecordStorePostgres:
		if c.Records.URL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case RecordStoreDynamoDB:
		if c.Records.Table == "" {
			return errors.New("a table name is required when using dynamodb")
		}
	default:
		return fmt.Errorf("unsupported record store type: %q", c.Records.Type)
	}

	switch c.Assets.Type {
	case AssetStoreFS:
		if c.Assets.BaseDir == "" {
			return errors.New("a content directory is required for filesystem assets")
		}
	case AssetStoreS3:
		if c.Assets.Bucket == "" {
			return errors.New("a bucket is required for s3 assets")
		}
	default:
		return fmt.Errorf("unsupported asset store type: %q", c.Assets.Type)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got: %d", c.MaxUploadBytes)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
// Call Close to release the database handles it opened.
func (c *ServerConfig) BuildService() (simpleinventory.Service, error) {
	logger := c.logger()

	records, err := c.buildRecordStore()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build record store: %w", err)
	}

	assets, err := c.buildAssetStore()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build asset store: %w", err)
	}

	options := []simpleinventory.Option{
		simpleinventory.WithRecordStore(records),
		simpleinventory.WithAssetStore(assets),
		simpleinventory.WithLogger(logger),
	}
	if c.EnableEventLogging {
		options = append(options, simpleinventory.WithEventSink(simpleinventory.NewLogEventSink(logger)))
	}

	svc, err := simpleinventory.New(options...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return svc, nil
}

// Close releases resources opened by BuildService
func (c *ServerConfig) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *ServerConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// buildRecordStore creates a RecordStore based on the configuration
func (c *ServerConfig) buildRecordStore() (simpleinventory.RecordStore, error) {
	ctx := context.Background()

	switch c.Records.Type {
	case RecordStoreMemory:
		return jsonfile.New(), nil

	case RecordStoreJSONFile:
		return jsonfile.Open(c.Records.Path)

	case RecordStorePostgres:
		pool, err := newPostgresPool(ctx, c.Records.URL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })

		store := pgrecords.NewWithPool(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure items table: %w", err)
		}
		return store, nil

	case RecordStoreSQLite:
		store, err := sqliterecords.Open(c.Records.Path)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil

	case RecordStoreBadger:
		opts := badgerrecords.Options{Dir: c.Records.Path, Logger: c.logger()}
		if c.Records.Path == ":memory:" {
			opts = badgerrecords.Options{InMemory: true, Logger: c.logger()}
		}
		store, err := badgerrecords.Open(opts)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil

	case RecordStoreDynamoDB:
		return dynamorecords.Open(ctx, dynamorecords.Config{
			Table:                 c.Records.Table,
			Region:                firstNonEmpty(c.Records.Region, c.AWS.Region),
			Endpoint:              c.Records.Endpoint,
			AccessKeyID:           c.AWS.AccessKeyID,
			SecretAccessKey:       c.AWS.SecretAccessKey,
			CreateTableIfNotExist: c.Records.CreateTable,
		})

	default:
		return nil, fmt.Errorf("unsupported record store type: %s", c.Records.Type)
	}
}

// newPostgresPool opens a pool whose sessions use schema as search_path.
// The schema is created when missing.
func newPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	ident := pgx.Identifier{schema}.Sanitize()
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
			return err
		}
		_, err := conn.Exec(ctx, "SET search_path TO "+ident)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// buildAssetStore creates an AssetStore based on the configuration
func (c *ServerConfig) buildAssetStore() (simpleinventory.AssetStore, error) {
	switch c.Assets.Type {
	case AssetStoreFS:
		var keys assetkey.Generator
		if c.Assets.Sharded {
			keys = assetkey.NewShardedGenerator(assetkey.NewDefaultGenerator())
		}
		return fsassets.New(fsassets.Config{
			BaseDir:      c.Assets.BaseDir,
			KeyGenerator: keys,
		})

	case AssetStoreS3:
		return s3assets.New(s3assets.Config{
			Region:                 firstNonEmpty(c.Assets.Region, c.AWS.Region),
			Bucket:                 c.Assets.Bucket,
			Prefix:                 c.Assets.Prefix,
			AccessKeyID:            c.AWS.AccessKeyID,
			SecretAccessKey:        c.AWS.SecretAccessKey,
			Endpoint:               c.Assets.Endpoint,
			UsePathStyle:           c.Assets.UsePathStyle,
			CreateBucketIfNotExist: c.Assets.CreateBucket,
		})

	default:
		return nil, fmt.Errorf("unsupported asset store type: %s", c.Assets.Type)
	}
}

// IsDevelopment reports whether the server runs in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
