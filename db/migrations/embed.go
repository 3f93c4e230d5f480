// Package migrations embeds the SQL schema migrations so binaries and tests
// can run them without access to the source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
