package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Backend identifiers accepted in DATA_SOURCE.
const (
	BackendLocal    = "local"
	BackendAWS      = "aws"
	BackendPostgres = "postgres"
)

// Object stores that can hold the flood-risk reference layer for the aws backend.
const (
	ObjectStoreS3  = "s3"
	ObjectStoreGCS = "gcs"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Backend         string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Local-file backend. FloodRiskPath is also the reference layer for the
	// postgres backend, which keeps no raster or layer data in the database.
	FloodRiskPath string
	ReportsPath   string
	StationsPath  string

	// Cloud backend.
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpointURL     string
	S3Bucket           string
	S3FloodRiskKey     string
	ReportsTable       string
	StationsTable      string
	ObjectStore        string
	GCSBucket          string
	GCSFloodRiskObject string

	// Relational backend.
	DatabaseURL string

	// Connection pool shared by the aws and postgres backends.
	PoolMinConns       int
	PoolMaxConns       int
	PoolAcquireTimeout time.Duration

	// Reference layer delivery.
	StreamThreshold int64
	StreamChunkSize int

	// Photo uploads for multipart report submissions.
	UploadDir     string
	MaxPhotoBytes int64

	// Kafka station ingestion and report event publishing. An empty topic disables the feature.
	KafkaBrokers       []string
	KafkaStationsTopic string
	KafkaReportsTopic  string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	acquireTimeout, err := parsePositiveDuration("POOL_ACQUIRE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	poolMin, err := parseInt("POOL_MIN", 1, 0)
	if err != nil {
		return nil, err
	}
	poolMax, err := parseInt("POOL_MAX", 10, 1)
	if err != nil {
		return nil, err
	}
	chunkSize, err := parseInt("STREAM_CHUNK_BYTES", 64<<10, 1)
	if err != nil {
		return nil, err
	}
	threshold, err := parseInt64("STREAM_THRESHOLD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	maxPhoto, err := parseInt64("MAX_PHOTO_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		Backend:         normalizeBackend(sharedcfg.EnvOrDefault("DATA_SOURCE", BackendLocal)),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":5000"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FloodRiskPath: sharedcfg.EnvOrDefault("LOCAL_FLOODRISK_PATH", "sample_data/floodrisk.geojson"),
		ReportsPath:   sharedcfg.EnvOrDefault("LOCAL_REPORTS_PATH", "sample_data/reported_floods.geojson"),
		StationsPath:  sharedcfg.EnvOrDefault("LOCAL_STATIONS_PATH", "sample_data/rain_gauge.geojson"),

		AWSRegion:          sharedcfg.EnvOrDefault("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSEndpointURL:     os.Getenv("AWS_ENDPOINT_URL"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3FloodRiskKey:     sharedcfg.EnvOrDefault("S3_FLOODRISK_KEY", "floodrisk.geojson"),
		ReportsTable:       sharedcfg.EnvOrDefault("DYNAMODB_TABLE_REPORTED_FLOODS", "reported_floods"),
		StationsTable:      sharedcfg.EnvOrDefault("DYNAMODB_TABLE_RAIN_GAUGE", "rain_gauge"),
		ObjectStore:        strings.ToLower(sharedcfg.EnvOrDefault("OBJECT_STORE", ObjectStoreS3)),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSFloodRiskObject: sharedcfg.EnvOrDefault("GCS_FLOODRISK_OBJECT", "floodrisk.geojson"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		PoolMinConns:       poolMin,
		PoolMaxConns:       poolMax,
		PoolAcquireTimeout: acquireTimeout,

		StreamThreshold: threshold,
		StreamChunkSize: chunkSize,

		UploadDir:     sharedcfg.EnvOrDefault("UPLOAD_DIR", "uploads"),
		MaxPhotoBytes: maxPhoto,

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaStationsTopic: os.Getenv("KAFKA_STATIONS_TOPIC"),
		KafkaReportsTopic:  os.Getenv("KAFKA_REPORTS_TOPIC"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "floodguard-stations"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks cross-field rules. Backend-specific settings are only
// required for the backend that is selected.
func (c *Config) validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.ReportsPath == "" || c.StationsPath == "" {
			return errors.New("LOCAL_REPORTS_PATH and LOCAL_STATIONS_PATH are required for the local backend")
		}
	case BackendAWS:
		if c.ReportsTable == "" || c.StationsTable == "" {
			return errors.New("DYNAMODB_TABLE_REPORTED_FLOODS and DYNAMODB_TABLE_RAIN_GAUGE are required for the aws backend")
		}
		switch c.ObjectStore {
		case ObjectStoreS3:
			if c.S3Bucket == "" {
				return errors.New("S3_BUCKET is required for the aws backend")
			}
		case ObjectStoreGCS:
			if c.GCSBucket == "" {
				return errors.New("GCS_BUCKET is required when OBJECT_STORE is gcs")
			}
		default:
			return fmt.Errorf("invalid OBJECT_STORE %q", c.ObjectStore)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid DATA_SOURCE %q: want local, aws or postgres", c.Backend)
	}

	if c.PoolMinConns > c.PoolMaxConns {
		return errors.New("POOL_MIN must not exceed POOL_MAX")
	}
	if c.StreamThreshold <= 0 {
		return errors.New("STREAM_THRESHOLD_BYTES must be positive")
	}
	if (c.KafkaStationsTopic != "" || c.KafkaReportsTopic != "") && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when a Kafka topic is configured")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// normalizeBackend accepts the historical upper-case "AWS" spelling.
func normalizeBackend(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseInt64(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
