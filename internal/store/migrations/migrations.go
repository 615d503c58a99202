// Package migrations embeds the archive schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
