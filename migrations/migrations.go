// Package migrations embeds the versioned SQL schema files.
package migrations

import "embed"

// FS holds every V{n}__{description}.sql file.
//
//go:embed *.sql
var FS embed.FS
