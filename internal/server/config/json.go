package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/starfrich/cryptletter/internal/flagx"
	"github.com/starfrich/cryptletter/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN        string         `json:"database_dsn"`
	BlobBackend        string         `json:"blob_backend"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	RedisAddr          string         `json:"redis_addr"`
	GrantSecret        string         `json:"grant_secret"`
	GrantTokenValidity timex.Duration `json:"grant_token_validity"`
	MasterKeyHex       string         `json:"master_key_hex"`
	PendingTTL         timex.Duration `json:"pending_ttl"`
	AutoApprove        bool           `json:"auto_approve"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.BlobBackend = c.BlobBackend
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.RedisAddr = c.RedisAddr
	config.GrantSecret = c.GrantSecret
	config.GrantTokenValidity = time.Duration(c.GrantTokenValidity.Duration)
	config.MasterKeyHex = c.MasterKeyHex
	config.PendingTTL = time.Duration(c.PendingTTL.Duration)
	config.AutoApprove = c.AutoApprove
}
