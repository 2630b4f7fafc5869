package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

func TestLookupNormalization(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.UpsertSeries(ctx, "Breaking Bad", models.SeriesMeta{Year: "2008"}); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"breaking bad", "Breaking_Bad", "BREAKING  BAD"} {
		s, err := store.GetSeries(ctx, name)
		if err != nil {
			t.Fatalf("GetSeries(%q) failed: %v", name, err)
		}
		if s.Key != "breaking bad" {
			t.Errorf("GetSeries(%q) resolved key %q", name, s.Key)
		}
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.UpsertSeries(ctx, "Dark", models.SeriesMeta{Year: "2017"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.UpsertSeries(ctx, "dark", models.SeriesMeta{Genre: "Thriller"})
	if err != nil {
		t.Fatal(err)
	}

	if second.Key != first.Key {
		t.Fatal("upsert created a second entity for an equivalent name")
	}
	if second.Year != "2017" || second.Genre != "Thriller" {
		t.Errorf("metadata merge wrong: year=%q genre=%q", second.Year, second.Genre)
	}
	if count, _ := store.SeriesCount(ctx); count != 1 {
		t.Errorf("SeriesCount = %d, want 1", count)
	}
}

func TestDeleteSeriesCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.UpsertSeries(ctx, "Dark", models.SeriesMeta{}); err != nil {
		t.Fatal(err)
	}
	path := models.QualityPath{Series: "dark", Language: "german", Season: "season 1", Quality: "720p"}
	if _, err := store.EnsureQuality(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetFirstBoundary(ctx, path, 100, 42); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.DeleteSeries(ctx, "DARK")
	if err != nil {
		t.Fatal(err)
	}
	if deleted.Key != "dark" {
		t.Errorf("deleted key %q", deleted.Key)
	}

	if _, err := store.GetSeries(ctx, "dark"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetSeries after delete: got %v, want ErrNotFound", err)
	}
	if _, err := store.SetLastBoundary(ctx, path, 109, 42); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("boundary on deleted series: got %v, want ErrNotFound", err)
	}
}

func TestDeleteAllSeries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.UpsertSeries(ctx, fmt.Sprintf("series %d", i), models.SeriesMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	count, err := store.DeleteAllSeries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("DeleteAllSeries = %d, want 5", count)
	}
	if remaining, _ := store.SeriesCount(ctx); remaining != 0 {
		t.Errorf("catalog not empty after wipe: %d left", remaining)
	}
}

func TestRecencyListing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 12; i++ {
		s, err := store.UpsertSeries(ctx, fmt.Sprintf("series %02d", i), models.SeriesMeta{})
		if err != nil {
			t.Fatal(err)
		}
		// Pin distinct creation times so ordering is deterministic.
		store.mu.Lock()
		store.series[s.Key].CreatedAt = base.Add(time.Duration(i) * time.Second)
		store.mu.Unlock()
	}

	summaries, err := store.ListSeriesSummaries(ctx, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 10 {
		t.Fatalf("got %d summaries, want 10", len(summaries))
	}
	for i, s := range summaries {
		want := fmt.Sprintf("series %02d", 11-i)
		if s.Key != want {
			t.Errorf("position %d: got %q, want %q", i, s.Key, want)
		}
	}

	// A deleted series disappears from the projection immediately.
	if _, err := store.DeleteSeries(ctx, "series 11"); err != nil {
		t.Fatal(err)
	}
	summaries, _ = store.ListSeriesSummaries(ctx, 10, true)
	if summaries[0].Key != "series 10" {
		t.Errorf("deleted series still listed first: %q", summaries[0].Key)
	}
}

func TestBoundaryAndPublishFlow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.UpsertSeries(ctx, "Dark", models.SeriesMeta{}); err != nil {
		t.Fatal(err)
	}
	path := models.QualityPath{Series: "Dark", Language: "German", Season: "Season 1", Quality: "720p"}
	if _, err := store.EnsureQuality(ctx, path); err != nil {
		t.Fatal(err)
	}

	if _, err := store.PublishQuality(ctx, path); !errors.Is(err, models.ErrIncompleteRange) {
		t.Fatalf("publish of empty range: got %v, want ErrIncompleteRange", err)
	}

	if _, err := store.SetFirstBoundary(ctx, path, 100, 42); err != nil {
		t.Fatal(err)
	}
	rng, err := store.SetLastBoundary(ctx, path, 109, 42)
	if err != nil {
		t.Fatal(err)
	}
	if rng.FirstID != 100 || rng.LastID != 109 || rng.ChannelID != 42 || rng.Published {
		t.Fatalf("unexpected range %+v", rng)
	}

	rng, err = store.PublishQuality(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !rng.Published || rng.MessageCount() != 10 {
		t.Fatalf("published range wrong: %+v", rng)
	}
}

func TestReadsAreIsolatedCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.UpsertSeries(ctx, "Dark", models.SeriesMeta{}); err != nil {
		t.Fatal(err)
	}

	s, err := store.GetSeries(ctx, "dark")
	if err != nil {
		t.Fatal(err)
	}
	s.EnsureLanguage("German") // mutate the copy only

	fresh, err := store.GetSeries(ctx, "dark")
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh.Languages) != 0 {
		t.Fatal("mutating a returned document leaked into the store")
	}
}
