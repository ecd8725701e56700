package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store       string           // VESTING_STORE ("postgres" or "memory", default "postgres")
	DatabaseURL string           // VESTING_DATABASE_URL (required for postgres)
	ProgramID   solana.PublicKey // VESTING_PROGRAM_ID (optional, zero = built-in id)
	GRPCAddr    string           // VESTING_GRPC_ADDR (default ":9090")
	HTTPAddr    string           // VESTING_HTTP_ADDR (default ":8080")
	NATSURL     string           // VESTING_NATS_URL (optional, empty = no events)
	AuthToken   string           // VESTING_AUTH_TOKEN (optional, empty = auth disabled)

	// SignatureMaxSkew bounds how far a signed request's timestamp may drift
	// from the server clock. VESTING_SIGNATURE_MAX_SKEW (default 5m).
	SignatureMaxSkew time.Duration

	// Keeper settings
	CrankSchedule   string           // VESTING_CRANK_SCHEDULE (cron spec; empty = keeper off)
	CrankHubAccount solana.PublicKey // VESTING_CRANK_HUB_ACCOUNT (required for hub-routed schedules)
	CrankBatch      int              // VESTING_CRANK_BATCH (default 10)
	CrankRate       float64          // VESTING_CRANK_RATE (batches per second, default 2)

	// Export settings
	ExportInterval   time.Duration // VESTING_EXPORT_INTERVAL (default 0 = disabled)
	ExportS3Bucket   string        // VESTING_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Endpoint string        // VESTING_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // VESTING_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // VESTING_EXPORT_S3_KEY (default "vesting/snapshot.jsonl")
	ExportFile       string        // VESTING_EXPORT_FILE (enables local file export when set)
}

func Load() (*Config, error) {
	c := &Config{
		Store:            envOrDefault("VESTING_STORE", StorePostgres),
		DatabaseURL:      os.Getenv("VESTING_DATABASE_URL"),
		GRPCAddr:         envOrDefault("VESTING_GRPC_ADDR", ":9090"),
		HTTPAddr:         envOrDefault("VESTING_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("VESTING_NATS_URL"),
		AuthToken:        os.Getenv("VESTING_AUTH_TOKEN"),
		CrankSchedule:    os.Getenv("VESTING_CRANK_SCHEDULE"),
		ExportS3Bucket:   os.Getenv("VESTING_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("VESTING_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("VESTING_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Key:      envOrDefault("VESTING_EXPORT_S3_KEY", "vesting/snapshot.jsonl"),
		ExportFile:       os.Getenv("VESTING_EXPORT_FILE"),
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("VESTING_DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("VESTING_STORE: unknown store %q", c.Store)
	}

	var err error
	if c.ProgramID, err = envKey("VESTING_PROGRAM_ID"); err != nil {
		return nil, err
	}
	if c.CrankHubAccount, err = envKey("VESTING_CRANK_HUB_ACCOUNT"); err != nil {
		return nil, err
	}
	if c.SignatureMaxSkew, err = envDuration("VESTING_SIGNATURE_MAX_SKEW", "5m"); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = envDuration("VESTING_EXPORT_INTERVAL", "0"); err != nil {
		return nil, err
	}

	batch, err := strconv.Atoi(envOrDefault("VESTING_CRANK_BATCH", "10"))
	if err != nil || batch < 1 {
		return nil, fmt.Errorf("VESTING_CRANK_BATCH: must be a positive integer")
	}
	c.CrankBatch = batch

	rate, err := strconv.ParseFloat(envOrDefault("VESTING_CRANK_RATE", "2"), 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("VESTING_CRANK_RATE: must be a positive number")
	}
	c.CrankRate = rate

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envKey(key string) (solana.PublicKey, error) {
	v := os.Getenv(key)
	if v == "" {
		return solana.PublicKey{}, nil
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", key, err)
	}
	return pk, nil
}
