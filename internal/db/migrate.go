package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every *.up.sql file in lexical order. Statements are written
// with IF NOT EXISTS so re-running is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			q := strings.TrimSpace(stmt)
			if q == "" {
				continue
			}
			if _, err := pool.Exec(ctx, q); err != nil {
				return fmt.Errorf("exec migration %s: %w", file, err)
			}
		}
	}
	return nil
}
