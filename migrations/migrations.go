// Package migrations embeds the segment store schema for each supported
// driver so the binary carries its own DDL.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
