// Package migrations embeds SQL migrations for the Postgres store backend.
package migrations

import "embed"

// FS exposes the embedded migration files to goose.
//
//go:embed *.sql
var FS embed.FS
