// Package migrations embeds the bridge's SQL migration files into the binary,
// so the database can be created without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.Migrations = files
}
