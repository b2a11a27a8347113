package db

import (
	"github.com/pkg/errors"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/store"
	"github.com/parleychat/parley/store/db/postgres"
	"github.com/parleychat/parley/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
