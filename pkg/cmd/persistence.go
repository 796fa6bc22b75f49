package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/reachcrm/flowd/pkg/persistence"
	"github.com/reachcrm/flowd/pkg/persistence/file"
	"github.com/reachcrm/flowd/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres:// connects to PostgreSQL, anything else is treated as a
// file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to connect to PostgreSQL", "error", err)
			panic(err)
		}

		return p
	}

	return file.NewPersistence(databaseURL)
}
