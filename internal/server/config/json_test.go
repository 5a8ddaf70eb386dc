package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_dsn":         "ledger.db",
		"blob_backend":         "s3",
		"s3_root_user":         "user",
		"s3_root_password":     "password",
		"s3_bucket":            "bucket",
		"s3_region":            "region",
		"s3_base_endpoint":     "base_endpoint",
		"redis_addr":           "10.0.0.1:6379",
		"grant_secret":         "my_secret_key",
		"grant_token_validity": "1m",
		"master_key_hex":       "ab",
		"pending_ttl":          "30m",
		"auto_approve":         true,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "ledger.db", cfg.DatabaseDSN)
		assert.Equal(t, "s3", cfg.BlobBackend)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, "10.0.0.1:6379", cfg.RedisAddr)
		assert.Equal(t, "my_secret_key", cfg.GrantSecret)
		assert.Equal(t, 1*time.Minute, cfg.GrantTokenValidity)
		assert.Equal(t, "ab", cfg.MasterKeyHex)
		assert.Equal(t, 30*time.Minute, cfg.PendingTTL)
		assert.True(t, cfg.AutoApprove)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			DatabaseDSN:        "ledger.db",
			BlobBackend:        "minio",
			S3RootUser:         "s3root",
			S3RootPassword:     "s3rootpassword",
			S3Bucket:           "s3bucket",
			S3Region:           "s3region",
			S3BaseEndpoint:     "s3baseendpoint",
			RedisAddr:          "localhost:6379",
			GrantSecret:        "key",
			GrantTokenValidity: 2 * time.Minute,
			PendingTTL:         10 * time.Minute,
		}
		parseJson(cfg)

		assert.Equal(t, "ledger.db", cfg.DatabaseDSN)
		assert.Equal(t, "minio", cfg.BlobBackend)
		assert.Equal(t, "s3root", cfg.S3RootUser)
		assert.Equal(t, "s3rootpassword", cfg.S3RootPassword)
		assert.Equal(t, "s3bucket", cfg.S3Bucket)
		assert.Equal(t, "s3region", cfg.S3Region)
		assert.Equal(t, "s3baseendpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, "key", cfg.GrantSecret)
		assert.Equal(t, 2*time.Minute, cfg.GrantTokenValidity)
		assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
