// Package migrations embeds the SQL schema for the Postgres state
// backend, applied by cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
