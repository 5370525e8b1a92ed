// Package ledger persists run records across invocations. A run file
// with a .yml or .yaml extension is kept as a YAML document; any
// other path is a SQLite database.
package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/me/jobtree/pkg/model"
)

// Store is the persistence layer for the run ledger.
type Store interface {
	// Load returns the recorded runs. A store that has never been
	// written loads an empty ledger.
	Load(ctx context.Context) (model.Ledger, error)

	// Save writes the ledger. Records are merged over what is
	// already stored.
	Save(ctx context.Context, l model.Ledger) error

	Close() error
}

// Open opens the run file at path, choosing the backend from the
// file extension.
func Open(path string, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return NewYAMLStore(path, logger), nil
	}
	return NewSQLiteStore(path, logger)
}
