package store

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the goose migration set for the billing schema,
// rooted so pkg/db.Migrate can read it directly.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		// Unreachable with a correct embed directive.
		panic(err)
	}
	return sub
}
