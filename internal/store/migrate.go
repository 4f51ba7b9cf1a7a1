package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed migrations/V*.sql
var migrationFiles embed.FS

// Migrate applies the embedded migrations in version order. Every migration is written to be
// re-runnable, so applying them on each start is safe.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationFiles, "migrations/V*.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no migration files found")
	}

	sort.Strings(files)

	for _, file := range files {
		content, err := migrationFiles.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			s.logger.Error(ctx, fmt.Sprintf("failed to execute migration %s", path.Base(file)), err)
			return fmt.Errorf("failed to execute migration %s: %w", path.Base(file), err)
		}
	}

	s.logger.Info(ctx, fmt.Sprintf("applied %d migrations", len(files)))
	return nil
}
