// Package migrations embeds the SQL schema for the local cache and the remote backend.
package migrations

import "embed"

// FS holds local/*.sql (SQLite cache and queue) and remote/*.sql (PostgreSQL).
//
//go:embed local/*.sql remote/*.sql
var FS embed.FS
