// Package migrations embeds the SQL migration files for the deskd archive.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
