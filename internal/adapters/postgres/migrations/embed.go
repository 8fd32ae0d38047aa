package migrations

import "embed"

// FS contains the goose migrations for the funding schema.
//
//go:embed *.sql
var FS embed.FS
