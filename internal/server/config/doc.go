// Package config loads runtime configuration for the catchkeeper sync server.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file (JSON, YAML or TOML) selected with -c/--config.
//  3. Environment variables prefixed with CATCHKEEPER_SERVER_, e.g.
//     CATCHKEEPER_SERVER_DATABASE_DSN.
//  4. Command-line flags registered by BindFlags.
//
// The default secret key is empty; the server then generates a random one
// at startup, which invalidates issued tokens on every restart.
package config
