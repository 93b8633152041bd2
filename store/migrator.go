package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/internal/profile"
)

// Migrate initializes the database schema on a fresh install. The full
// schema ships as an embedded LATEST.sql per driver; an already-initialized
// database is left untouched.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check database initialization")
	}
	if initialized {
		return nil
	}

	buf, err := latestSchema(s.profile)
	if err != nil {
		return err
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}

	slog.Info("database schema initialized", slog.String("driver", s.profile.Driver))
	return nil
}

func latestSchema(profile *profile.Profile) ([]byte, error) {
	path := fmt.Sprintf("migration/%s/LATEST.sql", profile.Driver)
	buf, err := migrationFS.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema file %q", path)
	}
	return buf, nil
}
