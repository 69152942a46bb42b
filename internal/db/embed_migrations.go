package db

import "embed"

// MigrationFS embeds the whatsapps and protocol_cache schema migrations.
// Used by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
