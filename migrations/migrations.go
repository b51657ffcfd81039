package migrations

import "embed"

// Postgres holds the schema migrations applied at startup.
//
//go:embed postgres/*.sql
var Postgres embed.FS
