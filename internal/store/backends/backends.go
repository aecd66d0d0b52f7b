// Package backends opens a store.KV by driver name.
package backends

import (
	"context"
	"fmt"

	"gallery/internal/store"
	"gallery/internal/store/filestore"
	"gallery/internal/store/memstore"
	"gallery/internal/store/sqlstore"

	"go.uber.org/zap"
)

// Drivers lists the accepted driver names.
var Drivers = []string{"sqlite3", "sqlite", "postgres", "file", "memory"}

// Open returns the backend for driver. dsn is a connection string for the SQL
// drivers, a directory for "file" and ignored for "memory".
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (store.KV, error) {
	switch driver {
	case "sqlite3", "sqlite", "postgres":
		return sqlstore.New(ctx, driver, dsn)
	case "file":
		return filestore.New(dsn, logger)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (want one of %v)", driver, Drivers)
	}
}
