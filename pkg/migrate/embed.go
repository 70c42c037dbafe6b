package migrate

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var embedded embed.FS

// EmbeddedDir is where the SQL files live inside the binary.
const EmbeddedDir = "migrations"

// Source returns the migrations filesystem. An empty dir selects the files
// compiled into the binary; anything else is read from disk.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, EmbeddedDir)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return os.DirFS(dir), nil
}
