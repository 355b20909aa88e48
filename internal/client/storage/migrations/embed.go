// Package migrations embeds the device-side SQLite schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
