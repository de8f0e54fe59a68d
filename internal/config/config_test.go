package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "./data", c.StoragePath)
	assert.Equal(t, int64(0), c.MaxUploadSize)
	assert.Equal(t, "/files/", c.UploadURI)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 30*time.Second, c.LockTimeout)
	assert.Equal(t, "sqlite", c.CatalogDriver)
	assert.Equal(t, "file:catalog.db", c.CatalogDSN)
	assert.Equal(t, "admin", c.S3AccessKey)
	assert.Equal(t, "secretpassword", c.S3SecretKey)
	assert.Equal(t, "uploads", c.S3Bucket)
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.Equal(t, "http://127.0.0.1:9000/", c.S3BaseEndpoint)
}

func TestLoadConfig_DefaultsWithoutArgs(t *testing.T) {
	c, err := LoadConfig(nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}

func TestLoadConfig_NegativeMaxSizeIsUnbounded(t *testing.T) {
	c, err := LoadConfig([]string{"-m=-5"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.MaxUploadSize)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"storage_path":    "/from/json",
		"max_upload_size": 100,
	})

	c, err := LoadConfig([]string{"-c", path, "-s", "/from/flag", "create", "-owner", "x"})
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", c.StoragePath)
	assert.Equal(t, int64(100), c.MaxUploadSize)
}

func TestLoadConfig_BadJSONPath(t *testing.T) {
	_, err := LoadConfig([]string{"-c", "/definitely/not/here.json"})
	require.Error(t, err)
}
