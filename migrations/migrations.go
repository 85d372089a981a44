// Package migrations embeds the goose SQL migrations for the Postgres archive.
//
// Migration files follow the naming convention: YYYYMMDDHHMMSS_description.sql
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
