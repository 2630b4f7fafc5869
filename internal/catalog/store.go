// ===============================
// internal/catalog/store.go - Catalog Store Contract
// ===============================

package catalog

import (
	"context"
	"strings"

	"github.com/c-o-l-d-x/SeriesBoT/internal/database"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// Store is the catalog of series documents. All name arguments are
// normalized before lookup, so "Dark" and "dark_" address the same entity.
//
// Creation is idempotent create-or-fetch and never conflicts. Reads of a
// missing path fail with models.ErrNotFound. Every write is atomic per
// series document: a concurrent reader never observes a half-written
// quality or range.
type Store interface {
	// UpsertSeries creates the series or refreshes its metadata.
	UpsertSeries(ctx context.Context, name string, meta models.SeriesMeta) (*models.Series, error)
	GetSeries(ctx context.Context, name string) (*models.Series, error)

	// DeleteSeries removes the series and everything it owns, returning the
	// deleted document for the caller to echo. The caller is responsible for
	// having confirmed the operation; there is no soft delete.
	DeleteSeries(ctx context.Context, name string) (*models.Series, error)
	// DeleteAllSeries empties the catalog and returns how many series fell.
	DeleteAllSeries(ctx context.Context) (int, error)

	// ListSeriesSummaries lists up to limit series (0 = no limit). With
	// sortByRecency the newest-created come first, ties broken by insertion
	// order; deletions are reflected immediately.
	ListSeriesSummaries(ctx context.Context, limit int, sortByRecency bool) ([]models.SeriesSummary, error)
	SeriesCount(ctx context.Context) (int, error)

	// EnsureQuality creates any missing language/season/quality segments
	// under an existing series and returns the leaf. The fresh leaf owns an
	// empty, unpublished range.
	EnsureQuality(ctx context.Context, path models.QualityPath) (*models.Quality, error)

	// Boundary and publish operations on the leaf's range.
	SetFirstBoundary(ctx context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error)
	SetLastBoundary(ctx context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error)
	PublishQuality(ctx context.Context, path models.QualityPath) (models.Range, error)

	SetSeriesPublished(ctx context.Context, name string, published bool) error
	SetSeriesPoster(ctx context.Context, name, posterURL string) error

	Close() error
}

// Open picks the backend by DSN: a postgres:// URL gets the persistent
// document store, an empty DSN the in-memory one (useful for development
// and tests).
func Open(databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	db, err := database.Connect(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		return nil, err
	}
	return NewPostgresStore(db), nil
}
