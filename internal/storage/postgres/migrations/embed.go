// Package migrations holds the Postgres schema, applied by the bootstrap task.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
