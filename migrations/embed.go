// Package migrations embeds the SQL schema for the PostgreSQL token backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
