package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/flagx"
)

var knownFlags = []string{"-s", "-m", "-u", "-l", "-t", "-D", "-d", "-k", "-p", "-b", "-g", "-e"}

// parseFlags populates Config fields from the short global flags in args.
//
// Supported flags:
//
//	-s string   storage root
//	-m int      max upload size in bytes (0 = unbounded)
//	-u string   upload URI prefix
//	-l string   log level
//	-t int      lock timeout, seconds
//	-D string   catalog driver (sqlite|postgres)
//	-d string   catalog DSN
//	-k string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//
// args are filtered through flagx.FilterArgs first, so command names and
// per-command flags of the admin tool do not disturb parsing.
func parseFlags(config *Config, args []string) error {
	filtered := flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("tusstore", flag.ContinueOnError)

	fs.StringVar(&config.StoragePath, "s", config.StoragePath, "storage root directory")
	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "max upload size in bytes (0 = unbounded)")
	fs.StringVar(&config.UploadURI, "u", config.UploadURI, "upload URI prefix")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	lockTimeout := fs.Int("t", int(config.LockTimeout.Seconds()), "lock timeout (in seconds)")
	fs.StringVar(&config.CatalogDriver, "D", config.CatalogDriver, "catalog driver (sqlite|postgres)")
	fs.StringVar(&config.CatalogDSN, "d", config.CatalogDSN, "catalog DSN")
	fs.StringVar(&config.S3AccessKey, "k", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.LockTimeout = time.Duration(*lockTimeout) * time.Second
	return nil
}
