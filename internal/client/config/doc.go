// Package config loads runtime configuration for the catchkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file (JSON, YAML or TOML) selected with -c/--config.
//  3. Environment variables prefixed with CATCHKEEPER_, e.g.
//     CATCHKEEPER_SERVER_ENDPOINT_ADDR.
//  4. Command-line flags registered by BindFlags.
//
// Later sources override earlier ones. Durations are written as strings
// like "5m" or "10s".
//
// # Example file
//
//	data_dir: ~/.catchkeeper
//	server_endpoint_addr: 127.0.0.1:50051
//	sync_interval: 5m
//	batch_size: 50
//	log_level: info
//
// An empty server_endpoint_addr keeps the device offline: every sync
// attempt leaves operations queued.
package config
