// Package migrations holds the SQL schema migrations, embedded into the binary.
package migrations

import "embed"

//go:embed *.sql
var sqlFS embed.FS

// FS returns the embedded migration files.
func FS() embed.FS {
	return sqlFS
}
