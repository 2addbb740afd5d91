// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem. It contains every .sql
// file in this directory, applied in lexical order by RunMigrations.
//
//go:embed *.sql
var FS embed.FS
