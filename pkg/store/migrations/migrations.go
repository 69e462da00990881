// Package migrations embeds the PostgreSQL schema migrations for the
// durable store (§4.1, §6 persisted state layout). The SQLite path uses
// GORM AutoMigrate instead; see pkg/store/gorm.go.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
