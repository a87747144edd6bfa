// Package migrations embeds the SQL schema migrations so the binary carries
// its own schema and can migrate any database it is pointed at.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
