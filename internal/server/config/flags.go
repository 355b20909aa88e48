package config

import "github.com/spf13/pflag"

const (
	KeyEndpointAddrGRPC            = "endpoint_addr_grpc"
	KeyEndpointAddrHTTP            = "endpoint_addr_http"
	KeyDatabaseDSN                 = "database_dsn"
	KeySecretKey                   = "secret_key"
	KeyAccessTokenValidityDuration = "access_token_validity_duration"
	KeyMaxBatchSize                = "max_batch_size"
	KeyLogLevel                    = "log_level"
	KeyLogFile                     = "log_file"
	KeyLogJSON                     = "log_json"
)

// FlagConfig names the config file flag.
const FlagConfig = "config"

var flagKeys = map[string]string{
	"grpc-addr":      KeyEndpointAddrGRPC,
	"http-addr":      KeyEndpointAddrHTTP,
	"dsn":            KeyDatabaseDSN,
	"token-ttl":      KeyAccessTokenValidityDuration,
	"max-batch-size": KeyMaxBatchSize,
	"log-level":      KeyLogLevel,
	"log-file":       KeyLogFile,
	"log-json":       KeyLogJSON,
}

// BindFlags registers the server flags on fs.
//
// Supported flags (short forms):
//
//	-c string   config file (JSON, YAML or TOML)
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-t duration access token validity
//
// The signing secret is read only from the file or the environment.
func BindFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "config file (json, yaml or toml)")
	fs.StringP("grpc-addr", "a", d.EndpointAddrGRPC, "address and port to run the gRPC server")
	fs.String("http-addr", d.EndpointAddrHTTP, "address and port of the health endpoint; empty disables it")
	fs.StringP("dsn", "d", d.DatabaseDSN, "database DSN")
	fs.DurationP("token-ttl", "t", d.AccessTokenValidityDuration, "access token validity")
	fs.Int("max-batch-size", d.MaxBatchSize, "maximum mutations per commit")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-file", d.LogFile, "log to this file with rotation instead of stderr")
	fs.Bool("log-json", d.LogJSON, "emit JSON logs")
}
