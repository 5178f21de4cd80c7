package migrations

import "embed"

// FS contains embedded SQLite migrations for SNS storage.
//
//go:embed *.sql
var FS embed.FS
