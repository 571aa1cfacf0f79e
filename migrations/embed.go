// Package migrations holds the SQL applied to every clinic schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
