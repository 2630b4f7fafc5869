package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c-o-l-d-x/SeriesBoT/internal/catalog"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

func seedRange(t *testing.T, store catalog.Store, publish bool) models.QualityPath {
	t.Helper()
	ctx := context.Background()
	path := models.QualityPath{Series: "dark", Language: "german", Season: "season 1", Quality: "720p"}

	if _, err := store.UpsertSeries(ctx, "Dark", models.SeriesMeta{Title: "Dark"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnsureQuality(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetFirstBoundary(ctx, path, 100, 42); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetLastBoundary(ctx, path, 109, 42); err != nil {
		t.Fatal(err)
	}
	if publish {
		if _, err := store.PublishQuality(ctx, path); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestSharedLinkResolvesPublishedRange(t *testing.T) {
	store := catalog.NewMemoryStore()
	want := seedRange(t, store, true)

	path, rng, err := resolveSharedRange(context.Background(), store, 42, 100, 109)
	if err != nil {
		t.Fatal(err)
	}
	if path != want {
		t.Fatalf("resolved path %+v, want %+v", path, want)
	}
	if !rng.Published || rng.FirstID != 100 || rng.LastID != 109 || rng.ChannelID != 42 {
		t.Fatalf("resolved range %+v", rng)
	}
}

func TestSharedLinkRefusesUnlistedRanges(t *testing.T) {
	store := catalog.NewMemoryStore()
	seedRange(t, store, true)
	ctx := context.Background()

	// A link is only a locator. Plausible-looking coordinates that match no
	// published range must be refused, or anyone could mint links draining
	// arbitrary channels through the bot.
	cases := []struct {
		channel     int64
		first, last int
	}{
		{99, 100, 109}, // foreign channel
		{42, 100, 200}, // widened span
		{42, 1, 109},   // shifted span
	}
	for _, tc := range cases {
		if _, _, err := resolveSharedRange(ctx, store, tc.channel, tc.first, tc.last); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("link %d_%d_%d: got %v, want ErrNotFound", tc.channel, tc.first, tc.last, err)
		}
	}
}

func TestSharedLinkRefusesUnpublishedRange(t *testing.T) {
	store := catalog.NewMemoryStore()
	seedRange(t, store, false)

	if _, _, err := resolveSharedRange(context.Background(), store, 42, 100, 109); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unpublished range resolved: got %v, want ErrNotFound", err)
	}
}

func newBrowseOnlyBot(ttl time.Duration) *Bot {
	return &Bot{browse: make(map[int64]*browseState), browseTTL: ttl}
}

func TestBrowseStateExpiresAfterTTL(t *testing.T) {
	b := newBrowseOnlyBot(time.Hour)
	b.setBrowseState(7, &browseState{SeriesKey: "dark"})
	if b.getBrowseState(7) == nil {
		t.Fatal("fresh state not readable")
	}

	b.browseMu.Lock()
	b.browse[7].lastSeen = time.Now().Add(-2 * time.Hour)
	b.browseMu.Unlock()

	if b.getBrowseState(7) != nil {
		t.Fatal("stale state served past its TTL")
	}
	b.browseMu.Lock()
	_, still := b.browse[7]
	b.browseMu.Unlock()
	if still {
		t.Fatal("stale entry not reclaimed on access")
	}
}

func TestClearBrowseStateDropsEntry(t *testing.T) {
	b := newBrowseOnlyBot(time.Hour)
	b.setBrowseState(7, &browseState{SeriesKey: "dark"})

	b.clearBrowseState(7)
	if b.getBrowseState(7) != nil {
		t.Fatal("state survived teardown")
	}
}
