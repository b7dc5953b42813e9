// Package migrations embeds the SQLite schema migration files so they
// are compiled into the binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
