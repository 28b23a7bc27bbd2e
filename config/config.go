// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	rebuildIndex   = pflag.Bool("rebuild-ad-index", false, "Rebuilds the advertisement index from the ledger on startup")
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers   = []string{"sqlite", "postgres"}
)

// RebuildAdIndex reports whether the advertisement index should be
// rebuilt from the wallet's tagged outputs on startup.
func RebuildAdIndex() bool {
	return *rebuildIndex
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.domain", "host_domain")
	v.BindEnv("host.routing_prefix", "host_routing_prefix")

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("auth.jwt_secret", "auth_jwt_secret")

	v.BindEnv("storage.bucket", "storage_bucket")
	v.BindEnv("storage.region", "storage_region")
	v.BindEnv("storage.endpoint", "storage_endpoint")
	v.BindEnv("storage.access_key_id", "storage_access_key_id")
	v.BindEnv("storage.secret_access_key", "storage_secret_access_key")
	v.BindEnv("storage.download_ttl_minutes", "storage_download_ttl_minutes")
	v.BindEnv("storage.upload_ttl_minutes", "storage_upload_ttl_minutes")

	v.BindEnv("wallet.url", "wallet_url")
	v.BindEnv("wallet.private_key", "wallet_private_key")

	v.BindEnv("pricing.per_gb_month_usd", "pricing_per_gb_month_usd")
	v.BindEnv("pricing.rate_url", "pricing_rate_url")
	v.BindEnv("pricing.fallback_rate", "pricing_fallback_rate")

	v.BindEnv("hosting.min_retention_minutes", "hosting_min_retention_minutes")
	v.BindEnv("hosting.max_upload_size", "hosting_max_upload_size")
	v.BindEnv("hosting.hash_timeout_seconds", "hosting_hash_timeout_seconds")

	v.BindEnv("overlay.hosts", "overlay_hosts")
	v.BindEnv("overlay.workers", "overlay_workers")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.domain", "localhost:8080")
	v.SetDefault("host.routing_prefix", "")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("storage.download_ttl_minutes", 30)
	v.SetDefault("storage.upload_ttl_minutes", 60)

	v.SetDefault("pricing.per_gb_month_usd", 0.05)
	v.SetDefault("pricing.rate_url", "https://api.whatsonchain.com/v1/bsv/main/exchangerate")
	v.SetDefault("pricing.fallback_rate", 100)

	v.SetDefault("hosting.min_retention_minutes", 15)
	v.SetDefault("hosting.max_upload_size", 100)
	v.SetDefault("hosting.hash_timeout_seconds", 300)

	v.SetDefault("overlay.workers", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDrivers, v.GetString("db.driver")) {
		return errors.New("invalid db driver provided")
	}

	if v.GetString("auth.jwt_secret") == "" {
		return errors.New("auth.jwt_secret can't be empty")
	}

	if v.GetString("storage.bucket") == "" {
		return errors.New("storage bucket can't be empty")
	}
	if v.GetString("storage.access_key_id") == "" {
		return errors.New("storage access key id can't be empty")
	}
	if v.GetString("storage.secret_access_key") == "" {
		return errors.New("storage secret access key can't be empty")
	}

	if v.GetString("wallet.url") == "" {
		return errors.New("wallet.url can't be empty")
	}

	key := v.GetString("wallet.private_key")
	if key == "" {
		return errors.New("wallet.private_key can't be empty")
	}
	if b, err := hex.DecodeString(key); err != nil || len(b) != 32 {
		return errors.New("wallet.private_key must be a 32 byte hex string")
	}

	if v.GetFloat64("pricing.per_gb_month_usd") <= 0 {
		return errors.New("pricing.per_gb_month_usd must be bigger than 0")
	}
	if v.GetFloat64("pricing.fallback_rate") <= 0 {
		return errors.New("pricing.fallback_rate must be bigger than 0")
	}

	if v.GetInt("hosting.min_retention_minutes") <= 0 {
		return errors.New("hosting.min_retention_minutes must be bigger than 0")
	}
	if v.GetInt("hosting.max_upload_size") <= 0 {
		return errors.New("hosting.max_upload_size must be bigger than 0")
	}

	// The value is configured in MiB
	v.Set("hosting.max_upload_size", v.GetInt64("hosting.max_upload_size")<<20)
	return nil
}
