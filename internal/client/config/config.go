package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CATCHKEEPER"

var errInvalidConfig = errors.New("invalid config")

// Config holds runtime settings for the catchkeeper CLI.
//
// Fields:
//   - DataDir / DatabaseFile: location of the on-device SQLite store.
//   - ServerEndpointAddr: host:port of the sync server; empty disables sync.
//   - RemoteTimeout: bound on each remote call and batch commit.
//   - SyncInterval: background sync period for the daemon.
//   - BatchSize / PullLimit / FullSyncLimit: sync engine sizing.
//   - S3*: snapshot backup destination.
//   - BackupPassphrase: encrypts uploaded snapshots when set.
type Config struct {
	DataDir            string
	DatabaseFile       string
	ServerEndpointAddr string
	RemoteTimeout      time.Duration
	SyncInterval       time.Duration
	BatchSize          int
	PullLimit          int
	FullSyncLimit      int

	LogLevel string
	LogFile  string
	LogJSON  bool

	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	BackupPassphrase string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = ".catchkeeper"
	c.DatabaseFile = "catchkeeper.db"
	c.ServerEndpointAddr = ""
	c.RemoteTimeout = 10 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.BatchSize = 50
	c.PullLimit = 100
	c.FullSyncLimit = 1000
	c.LogLevel = "info"
	c.LogFile = ""
	c.LogJSON = false
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""
	c.S3AccessKey = ""
	c.S3SecretKey = ""
	c.BackupPassphrase = ""
}

// Validate rejects values the sync engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("%w: %s is empty", errInvalidConfig, KeyDataDir)
	case c.DatabaseFile == "":
		return fmt.Errorf("%w: %s is empty", errInvalidConfig, KeyDatabaseFile)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: %s must be positive", errInvalidConfig, KeyBatchSize)
	case c.PullLimit <= 0:
		return fmt.Errorf("%w: %s must be positive", errInvalidConfig, KeyPullLimit)
	case c.FullSyncLimit <= 0:
		return fmt.Errorf("%w: %s must be positive", errInvalidConfig, KeyFullSyncLimit)
	case c.RemoteTimeout < 0:
		return fmt.Errorf("%w: %s is negative", errInvalidConfig, KeyRemoteTimeout)
	case c.SyncInterval < 0:
		return fmt.Errorf("%w: %s is negative", errInvalidConfig, KeySyncInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	return nil
}

// RemoteEnabled reports whether a sync server is configured.
func (c *Config) RemoteEnabled() bool {
	return c.ServerEndpointAddr != ""
}

// Load builds a Config from defaults, the file named by the "config" flag,
// the environment and the flags in fs, in that order. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup(FlagConfig); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", f.Value.String(), err)
			}
		}
	}

	cfg := &Config{
		DataDir:            v.GetString(KeyDataDir),
		DatabaseFile:       v.GetString(KeyDatabaseFile),
		ServerEndpointAddr: v.GetString(KeyServerEndpointAddr),
		RemoteTimeout:      v.GetDuration(KeyRemoteTimeout),
		SyncInterval:       v.GetDuration(KeySyncInterval),
		BatchSize:          v.GetInt(KeyBatchSize),
		PullLimit:          v.GetInt(KeyPullLimit),
		FullSyncLimit:      v.GetInt(KeyFullSyncLimit),
		LogLevel:           v.GetString(KeyLogLevel),
		LogFile:            v.GetString(KeyLogFile),
		LogJSON:            v.GetBool(KeyLogJSON),
		S3Bucket:           v.GetString(KeyS3Bucket),
		S3Region:           v.GetString(KeyS3Region),
		S3BaseEndpoint:     v.GetString(KeyS3BaseEndpoint),
		S3AccessKey:        v.GetString(KeyS3AccessKey),
		S3SecretKey:        v.GetString(KeyS3SecretKey),
		BackupPassphrase:   v.GetString(KeyBackupPassphrase),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	var d Config
	d.LoadDefaults()

	v := viper.New()
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyDatabaseFile, d.DatabaseFile)
	v.SetDefault(KeyServerEndpointAddr, d.ServerEndpointAddr)
	v.SetDefault(KeyRemoteTimeout, d.RemoteTimeout)
	v.SetDefault(KeySyncInterval, d.SyncInterval)
	v.SetDefault(KeyBatchSize, d.BatchSize)
	v.SetDefault(KeyPullLimit, d.PullLimit)
	v.SetDefault(KeyFullSyncLimit, d.FullSyncLimit)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, d.LogFile)
	v.SetDefault(KeyLogJSON, d.LogJSON)
	v.SetDefault(KeyS3Bucket, d.S3Bucket)
	v.SetDefault(KeyS3Region, d.S3Region)
	v.SetDefault(KeyS3BaseEndpoint, d.S3BaseEndpoint)
	v.SetDefault(KeyS3AccessKey, d.S3AccessKey)
	v.SetDefault(KeyS3SecretKey, d.S3SecretKey)
	v.SetDefault(KeyBackupPassphrase, d.BackupPassphrase)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}
