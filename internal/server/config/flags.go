package config

import (
	"flag"
	"os"
	"time"

	"github.com/dkrasnovs/filedepot/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   storage backend, "local" or "s3"
//	-f string   local storage directory
//	-l string   public base path prepended to file URLs
//	-m int      max upload size, bytes
//	-n int      cleanup batch size
//	-i int      cleanup interval, minutes
//	-q int      resolved queue entry retention, hours
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers (minutes for the cleanup
//     interval, hours for retention) and converted to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-f", "-l", "-m", "-n", "-i", "-q", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend (local or s3)")
	fs.StringVar(&config.StorageDir, "f", config.StorageDir, "local storage directory")
	fs.StringVar(&config.PublicBasePath, "l", config.PublicBasePath, "public base path")
	fs.Int64Var(&config.MaxUploadBytes, "m", config.MaxUploadBytes, "max upload size (bytes)")
	fs.IntVar(&config.CleanupBatchSize, "n", config.CleanupBatchSize, "cleanup batch size")

	cleanupInterval := fs.Int("i", int(config.CleanupInterval.Minutes()), "cleanup_interval (in minutes)")
	queueRetention := fs.Int("q", int(config.QueueRetention.Hours()), "queue_retention (in hours)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CleanupInterval = time.Duration(*cleanupInterval) * time.Minute
	config.QueueRetention = time.Duration(*queueRetention) * time.Hour
}
