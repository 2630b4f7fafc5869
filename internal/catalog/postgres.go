// ===============================
// internal/catalog/postgres.go - Persistent Catalog Backend
// ===============================

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// PostgresStore persists one row per series. The nested tree lives in the
// JSONB languages column, so a mutation is a read-modify-write of a single
// row under FOR UPDATE and readers always see a whole document.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) UpsertSeries(ctx context.Context, name string, meta models.SeriesMeta) (*models.Series, error) {
	key := models.NormalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("series name is empty: %w", models.ErrNotFound)
	}

	var out *models.Series
	err := p.withSeriesTx(ctx, key, true, func(tx *sqlx.Tx, s *models.Series) error {
		if s == nil {
			s = &models.Series{
				Key:       key,
				CreatedAt: time.Now(),
				Languages: models.LanguageMap{},
			}
			applyMeta(s, name, meta)
			if err := insertSeries(ctx, tx, s); err != nil {
				return err
			}
			out = s
			return nil
		}
		applyMeta(s, name, meta)
		out = s
		return updateSeries(ctx, tx, s)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresStore) GetSeries(ctx context.Context, name string) (*models.Series, error) {
	key := models.NormalizeName(name)

	var s models.Series
	err := p.db.GetContext(ctx, &s, `
		SELECT name_key, title, year, genre, rating, poster_url, published, languages, created_at
		FROM series WHERE name_key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series %q: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) DeleteSeries(ctx context.Context, name string) (*models.Series, error) {
	key := models.NormalizeName(name)

	var deleted *models.Series
	err := p.withSeriesTx(ctx, key, false, func(tx *sqlx.Tx, s *models.Series) error {
		deleted = s
		_, err := tx.ExecContext(ctx, "DELETE FROM series WHERE name_key = $1", key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (p *PostgresStore) DeleteAllSeries(ctx context.Context) (int, error) {
	result, err := p.db.ExecContext(ctx, "DELETE FROM series")
	if err != nil {
		return 0, fmt.Errorf("failed to clear catalog: %w", err)
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

func (p *PostgresStore) ListSeriesSummaries(ctx context.Context, limit int, sortByRecency bool) ([]models.SeriesSummary, error) {
	query := `
		SELECT name_key, title, year, published, created_at
		FROM series ORDER BY name_key ASC
	`
	if sortByRecency {
		// ctid breaks created_at ties in insertion order
		query = `
			SELECT name_key, title, year, published, created_at
			FROM series ORDER BY created_at DESC, ctid DESC
		`
	}
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	summaries := []models.SeriesSummary{}
	if err := p.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	return summaries, nil
}

func (p *PostgresStore) SeriesCount(ctx context.Context) (int, error) {
	var count int
	if err := p.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM series"); err != nil {
		return 0, fmt.Errorf("failed to count series: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) EnsureQuality(ctx context.Context, path models.QualityPath) (*models.Quality, error) {
	var out models.Quality
	err := p.withSeriesTx(ctx, models.NormalizeName(path.Series), false, func(tx *sqlx.Tx, s *models.Series) error {
		q := s.EnsureLanguage(path.Language).EnsureSeason(path.Season).EnsureQuality(path.Quality)
		out = *q
		return updateSeries(ctx, tx, s)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) SetFirstBoundary(ctx context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error) {
	return p.mutateRange(ctx, path, func(r *models.Range) error {
		r.SetFirstBoundary(messageID, channelID)
		return nil
	})
}

func (p *PostgresStore) SetLastBoundary(ctx context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error) {
	return p.mutateRange(ctx, path, func(r *models.Range) error {
		r.SetLastBoundary(messageID, channelID)
		return nil
	})
}

func (p *PostgresStore) PublishQuality(ctx context.Context, path models.QualityPath) (models.Range, error) {
	return p.mutateRange(ctx, path, func(r *models.Range) error {
		return r.Publish()
	})
}

func (p *PostgresStore) mutateRange(ctx context.Context, path models.QualityPath, mutate func(*models.Range) error) (models.Range, error) {
	var out models.Range
	err := p.withSeriesTx(ctx, models.NormalizeName(path.Series), false, func(tx *sqlx.Tx, s *models.Series) error {
		q, err := s.LookupQuality(path)
		if err != nil {
			return err
		}
		if err := mutate(&q.Range); err != nil {
			return err
		}
		out = q.Range
		return updateSeries(ctx, tx, s)
	})
	if err != nil {
		return models.Range{}, err
	}
	return out, nil
}

func (p *PostgresStore) SetSeriesPublished(ctx context.Context, name string, published bool) error {
	return p.simpleUpdate(ctx, name, "UPDATE series SET published = $2 WHERE name_key = $1", published)
}

func (p *PostgresStore) SetSeriesPoster(ctx context.Context, name, posterURL string) error {
	return p.simpleUpdate(ctx, name, "UPDATE series SET poster_url = $2 WHERE name_key = $1", posterURL)
}

func (p *PostgresStore) simpleUpdate(ctx context.Context, name, query string, arg interface{}) error {
	key := models.NormalizeName(name)
	result, err := p.db.ExecContext(ctx, query, key, arg)
	if err != nil {
		return fmt.Errorf("failed to update series: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("series %q: %w", key, models.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// withSeriesTx locks the document row, hands it to fn, and commits.
// allowMissing passes a nil document for fn to create; otherwise a missing
// row fails with ErrNotFound.
func (p *PostgresStore) withSeriesTx(ctx context.Context, key string, allowMissing bool, fn func(tx *sqlx.Tx, s *models.Series) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var s models.Series
	err = tx.GetContext(ctx, &s, `
		SELECT name_key, title, year, genre, rating, poster_url, published, languages, created_at
		FROM series WHERE name_key = $1 FOR UPDATE
	`, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !allowMissing {
			return fmt.Errorf("series %q: %w", key, models.ErrNotFound)
		}
		if err := fn(tx, nil); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to lock series: %w", err)
	default:
		if err := fn(tx, &s); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertSeries(ctx context.Context, tx *sqlx.Tx, s *models.Series) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO series (name_key, title, year, genre, rating, poster_url, published, languages, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.Key, s.Title, s.Year, s.Genre, s.Rating, s.PosterURL, s.Published, s.Languages, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert series: %w", err)
	}
	return nil
}

func updateSeries(ctx context.Context, tx *sqlx.Tx, s *models.Series) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE series
		SET title = $2, year = $3, genre = $4, rating = $5,
		    poster_url = $6, published = $7, languages = $8
		WHERE name_key = $1
	`, s.Key, s.Title, s.Year, s.Genre, s.Rating, s.PosterURL, s.Published, s.Languages)
	if err != nil {
		return fmt.Errorf("failed to update series: %w", err)
	}
	return nil
}
