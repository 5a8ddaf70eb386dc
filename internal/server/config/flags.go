package config

import (
	"flag"
	"os"
	"time"

	"github.com/starfrich/cryptletter/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-o string   blob backend, "s3" or "minio"
//	-u string   object storage root user
//	-p string   object storage root password
//	-b string   object storage bucket name
//	-g string   object storage region
//	-e string   object storage base endpoint (e.g., "http://127.0.0.1:9000/")
//	-r string   redis address
//	-s string   grant token HMAC secret
//	-t int      grant token validity, minutes
//	-m string   capability master key, hex
//	-y          auto-approve unwrap requests (development only)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-o", "-u", "-p", "-b", "-g", "-e", "-r", "-s", "-t", "-m", "-y"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.BlobBackend, "o", config.BlobBackend, "blob backend (s3 or minio)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "object storage root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "object storage root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "object storage bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "object storage region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "object storage base endpoint")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.GrantSecret, "s", config.GrantSecret, "grant token secret")

	grantTokenValidity := fs.Int("t", int(config.GrantTokenValidity.Minutes()), "grant_token_validity (in minutes)")

	fs.StringVar(&config.MasterKeyHex, "m", config.MasterKeyHex, "capability master key (hex)")
	fs.BoolVar(&config.AutoApprove, "y", config.AutoApprove, "auto-approve unwrap requests")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.GrantTokenValidity = time.Duration(*grantTokenValidity) * time.Minute
}
