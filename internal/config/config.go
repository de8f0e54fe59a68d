// Package config handles configuration for tusstore, including defaults,
// JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the storage engine and the admin tool.
//
// Fields:
//   - StoragePath: root directory; uploads live under <StoragePath>/uploads.
//   - MaxUploadSize: per-upload byte cap applied by every append; 0 means no cap.
//   - UploadURI: base URI the id factory recognises, e.g. "/files/".
//   - LogLevel: debug, info, warn or error.
//   - LockTimeout: how long a command waits for the in-process upload lock.
//   - CatalogDriver / CatalogDSN: "sqlite" or "postgres" catalog database.
//   - S3AccessKey / S3SecretKey / S3Bucket / S3Region / S3BaseEndpoint:
//     object storage used by the archive command.
type Config struct {
	StoragePath    string
	MaxUploadSize  int64
	UploadURI      string
	LogLevel       string
	LockTimeout    time.Duration
	CatalogDriver  string
	CatalogDSN     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the S3 credentials are MinIO defaults and must be overridden in prod.
func (c *Config) LoadDefaults() {
	c.StoragePath = "./data"
	c.MaxUploadSize = 0
	c.UploadURI = "/files/"
	c.LogLevel = "info"
	c.LockTimeout = 30 * time.Second
	c.CatalogDriver = "sqlite"
	c.CatalogDSN = "file:catalog.db"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3Bucket = "uploads"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags found in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.MaxUploadSize < 0 {
		c.MaxUploadSize = 0
	}
	if c.LockTimeout < 0 {
		c.LockTimeout = 0
	}
}
