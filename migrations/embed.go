// Package migrations embeds the bridge's SQL schema so the binary can
// migrate its database without the files on disk.
package migrations

import "embed"

// FS holds the migration files at its root. Pass it to
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
