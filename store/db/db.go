package db

import (
	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/internal/profile"
	"github.com/rasphia/rasphia/store"
	"github.com/rasphia/rasphia/store/db/postgres"
	"github.com/rasphia/rasphia/store/db/sqlite"
)

// PostgreSQL is the primary database with full support, including catalog
// vector search via pgvector. SQLite is for development/testing only and
// does not support vector search.

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
