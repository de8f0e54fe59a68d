package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tusstore/internal/flagx"
	"github.com/dmitrijs2005/tusstore/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted.
// Fields left out of the file keep their current value.
type JsonConfig struct {
	StoragePath    *string         `json:"storage_path"`
	MaxUploadSize  *int64          `json:"max_upload_size"`
	UploadURI      *string         `json:"upload_uri"`
	LogLevel       *string         `json:"log_level"`
	LockTimeout    *timex.Duration `json:"lock_timeout"`
	CatalogDriver  *string         `json:"catalog_driver"`
	CatalogDSN     *string         `json:"catalog_dsn"`
	S3AccessKey    *string         `json:"s3_access_key"`
	S3SecretKey    *string         `json:"s3_secret_key"`
	S3Bucket       *string         `json:"s3_bucket"`
	S3Region       *string         `json:"s3_region"`
	S3BaseEndpoint *string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the JSON file named by -c/-config in args.
// Without that flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFileFlag(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config %s: %w", jsonConfigFile, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	setString(&config.StoragePath, c.StoragePath)
	setString(&config.UploadURI, c.UploadURI)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.CatalogDriver, c.CatalogDriver)
	setString(&config.CatalogDSN, c.CatalogDSN)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.MaxUploadSize != nil {
		config.MaxUploadSize = *c.MaxUploadSize
	}
	if c.LockTimeout != nil {
		config.LockTimeout = c.LockTimeout.Duration
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
