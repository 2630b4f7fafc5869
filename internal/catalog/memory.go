// ===============================
// internal/catalog/memory.go - In-Memory Catalog Backend
// ===============================

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// MemoryStore keeps the whole catalog in process memory. It backs local
// development and tests; the documents die with the process.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string]*models.Series
	order  map[string]int64 // insertion sequence, recency tie-break
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: make(map[string]*models.Series),
		order:  make(map[string]int64),
	}
}

func (m *MemoryStore) UpsertSeries(_ context.Context, name string, meta models.SeriesMeta) (*models.Series, error) {
	key := models.NormalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("series name is empty: %w", models.ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[key]
	if !ok {
		m.seq++
		s = &models.Series{
			Key:       key,
			CreatedAt: time.Now(),
			Languages: models.LanguageMap{},
		}
		m.series[key] = s
		m.order[key] = m.seq
	}
	applyMeta(s, name, meta)
	return cloneSeries(s)
}

func (m *MemoryStore) GetSeries(_ context.Context, name string) (*models.Series, error) {
	key := models.NormalizeName(name)

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.series[key]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", key, models.ErrNotFound)
	}
	return cloneSeries(s)
}

func (m *MemoryStore) DeleteSeries(_ context.Context, name string) (*models.Series, error) {
	key := models.NormalizeName(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[key]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", key, models.ErrNotFound)
	}
	deleted, err := cloneSeries(s)
	if err != nil {
		return nil, err
	}
	delete(m.series, key)
	delete(m.order, key)
	return deleted, nil
}

func (m *MemoryStore) DeleteAllSeries(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.series)
	m.series = make(map[string]*models.Series)
	m.order = make(map[string]int64)
	return count, nil
}

func (m *MemoryStore) ListSeriesSummaries(_ context.Context, limit int, sortByRecency bool) ([]models.SeriesSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]models.SeriesSummary, 0, len(m.series))
	seqs := make([]int64, 0, len(m.series))
	for key, s := range m.series {
		summaries = append(summaries, models.SeriesSummary{
			Key:       s.Key,
			Title:     s.Title,
			Year:      s.Year,
			Published: s.Published,
			CreatedAt: s.CreatedAt,
		})
		seqs = append(seqs, m.order[key])
	}

	if sortByRecency {
		sort.SliceStable(summaries, func(i, j int) bool {
			if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
				return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
			}
			return seqs[i] > seqs[j]
		})
	} else {
		sort.SliceStable(summaries, func(i, j int) bool {
			return strings.Compare(summaries[i].Key, summaries[j].Key) < 0
		})
	}

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (m *MemoryStore) SeriesCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.series), nil
}

func (m *MemoryStore) EnsureQuality(_ context.Context, path models.QualityPath) (*models.Quality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[models.NormalizeName(path.Series)]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", path.Series, models.ErrNotFound)
	}
	q := s.EnsureLanguage(path.Language).EnsureSeason(path.Season).EnsureQuality(path.Quality)
	clone := *q
	return &clone, nil
}

func (m *MemoryStore) SetFirstBoundary(_ context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error) {
	return m.mutateRange(path, func(r *models.Range) error {
		r.SetFirstBoundary(messageID, channelID)
		return nil
	})
}

func (m *MemoryStore) SetLastBoundary(_ context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error) {
	return m.mutateRange(path, func(r *models.Range) error {
		r.SetLastBoundary(messageID, channelID)
		return nil
	})
}

func (m *MemoryStore) PublishQuality(_ context.Context, path models.QualityPath) (models.Range, error) {
	return m.mutateRange(path, func(r *models.Range) error {
		return r.Publish()
	})
}

func (m *MemoryStore) mutateRange(path models.QualityPath, mutate func(*models.Range) error) (models.Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[models.NormalizeName(path.Series)]
	if !ok {
		return models.Range{}, fmt.Errorf("series %q: %w", path.Series, models.ErrNotFound)
	}
	q, err := s.LookupQuality(path)
	if err != nil {
		return models.Range{}, err
	}
	if err := mutate(&q.Range); err != nil {
		return models.Range{}, err
	}
	return q.Range, nil
}

func (m *MemoryStore) SetSeriesPublished(_ context.Context, name string, published bool) error {
	return m.mutateSeries(name, func(s *models.Series) {
		s.Published = published
	})
}

func (m *MemoryStore) SetSeriesPoster(_ context.Context, name, posterURL string) error {
	return m.mutateSeries(name, func(s *models.Series) {
		s.PosterURL = posterURL
	})
}

func (m *MemoryStore) mutateSeries(name string, mutate func(*models.Series)) error {
	key := models.NormalizeName(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[key]
	if !ok {
		return fmt.Errorf("series %q: %w", key, models.ErrNotFound)
	}
	mutate(s)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// applyMeta refreshes metadata on create or edit; blank fields on an edit
// keep the prior values.
func applyMeta(s *models.Series, name string, meta models.SeriesMeta) {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSpace(name)
	}
	if title != "" {
		s.Title = title
	}
	if meta.Year != "" {
		s.Year = strings.TrimSpace(meta.Year)
	}
	if meta.Genre != "" {
		s.Genre = strings.TrimSpace(meta.Genre)
	}
	if meta.Rating != "" {
		s.Rating = strings.TrimSpace(meta.Rating)
	}
}

// cloneSeries deep-copies a document so callers never alias store state.
func cloneSeries(s *models.Series) (*models.Series, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out models.Series
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	out.CreatedAt = s.CreatedAt
	return &out, nil
}
