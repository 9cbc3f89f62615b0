// Package migrations holds the SQLite schema, applied by the bootstrap task.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
