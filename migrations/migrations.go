// Package migrations embeds the relational backend schema.
package migrations

import "embed"

// FS holds goose-annotated SQL migrations.
//
//go:embed *.sql
var FS embed.FS
