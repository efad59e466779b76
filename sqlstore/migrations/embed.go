package migrations

import "embed"

// FS contains the goose migrations shared by the SQLite and Postgres backends.
//
//go:embed *.sql
var FS embed.FS
