package config

import "github.com/spf13/pflag"

// Config keys, as used in files and (upper-cased, prefixed) in the environment.
const (
	KeyDataDir            = "data_dir"
	KeyDatabaseFile       = "database_file"
	KeyServerEndpointAddr = "server_endpoint_addr"
	KeyRemoteTimeout      = "remote_timeout"
	KeySyncInterval       = "sync_interval"
	KeyBatchSize          = "batch_size"
	KeyPullLimit          = "pull_limit"
	KeyFullSyncLimit      = "full_sync_limit"
	KeyLogLevel           = "log_level"
	KeyLogFile            = "log_file"
	KeyLogJSON            = "log_json"
	KeyS3Bucket           = "s3_bucket"
	KeyS3Region           = "s3_region"
	KeyS3BaseEndpoint     = "s3_base_endpoint"
	KeyS3AccessKey        = "s3_access_key"
	KeyS3SecretKey        = "s3_secret_key"
	KeyBackupPassphrase   = "backup_passphrase"
)

// FlagConfig names the config file flag.
const FlagConfig = "config"

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":        KeyDataDir,
	"database-file":   KeyDatabaseFile,
	"server":          KeyServerEndpointAddr,
	"remote-timeout":  KeyRemoteTimeout,
	"sync-interval":   KeySyncInterval,
	"batch-size":      KeyBatchSize,
	"pull-limit":      KeyPullLimit,
	"full-sync-limit": KeyFullSyncLimit,
	"log-level":       KeyLogLevel,
	"log-file":        KeyLogFile,
	"log-json":        KeyLogJSON,
	"s3-bucket":       KeyS3Bucket,
	"s3-region":       KeyS3Region,
	"s3-endpoint":     KeyS3BaseEndpoint,
}

// BindFlags registers the configuration flags on fs.
//
// Supported flags (short forms):
//
//	-c string   config file (JSON, YAML or TOML)
//	-d string   data directory
//	-s string   sync server address; empty keeps the device offline
//
// S3 credentials and the backup passphrase are not flags; set them in the
// file or the environment.
func BindFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "config file (json, yaml or toml)")
	fs.StringP("data-dir", "d", d.DataDir, "directory holding the local database")
	fs.String("database-file", d.DatabaseFile, "local database file name")
	fs.StringP("server", "s", d.ServerEndpointAddr, "sync server address (host:port); empty disables sync")
	fs.Duration("remote-timeout", d.RemoteTimeout, "timeout for each remote call")
	fs.Duration("sync-interval", d.SyncInterval, "background sync interval")
	fs.Int("batch-size", d.BatchSize, "operations per atomic commit")
	fs.Int("pull-limit", d.PullLimit, "records fetched by pull")
	fs.Int("full-sync-limit", d.FullSyncLimit, "records fetched by full sync")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-file", d.LogFile, "log to this file with rotation instead of stderr")
	fs.Bool("log-json", d.LogJSON, "emit JSON logs")
	fs.String("s3-bucket", d.S3Bucket, "bucket for snapshot backups")
	fs.String("s3-region", d.S3Region, "region of the backup bucket")
	fs.String("s3-endpoint", d.S3BaseEndpoint, "S3-compatible endpoint URL")
}
