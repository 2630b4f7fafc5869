package models

import (
	"errors"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Dark", "dark"},
		{"dark", "dark"},
		{"DARK__ ", "dark"},
		{"Breaking  Bad", "breaking bad"},
		{"breaking_bad", "breaking bad"},
		{"  _Breaking_Bad_  ", "breaking bad"},
	}
	for _, c := range cases {
		if got := NormalizeName(c.raw); got != c.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestRangeOrderCorrection(t *testing.T) {
	var r Range
	r.SetFirstBoundary(109, 42)
	r.SetLastBoundary(100, 42)

	if r.FirstID != 100 || r.LastID != 109 {
		t.Fatalf("reversed boundaries not swapped: got [%d, %d]", r.FirstID, r.LastID)
	}
	if r.MessageCount() != 10 {
		t.Errorf("MessageCount() = %d, want 10", r.MessageCount())
	}
}

func TestRangePublish(t *testing.T) {
	var r Range
	if err := r.Publish(); !errors.Is(err, ErrIncompleteRange) {
		t.Fatalf("publish of empty range: got %v, want ErrIncompleteRange", err)
	}

	r.SetFirstBoundary(100, 42)
	if err := r.Publish(); !errors.Is(err, ErrIncompleteRange) {
		t.Fatalf("publish with one boundary: got %v, want ErrIncompleteRange", err)
	}

	r.SetLastBoundary(109, 42)
	if err := r.Publish(); err != nil {
		t.Fatalf("publish of complete range failed: %v", err)
	}
	if !r.Published {
		t.Fatal("range not marked published")
	}

	// Publishing twice stays published with no other change
	if err := r.Publish(); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}
	if !r.Published || r.FirstID != 100 || r.LastID != 109 {
		t.Fatal("second publish mutated the range")
	}
}

func TestRedefiningBoundaryDropsPublished(t *testing.T) {
	var r Range
	r.SetFirstBoundary(100, 42)
	r.SetLastBoundary(109, 42)
	if err := r.Publish(); err != nil {
		t.Fatal(err)
	}

	r.SetFirstBoundary(90, 42)
	if r.Published {
		t.Fatal("redefined boundary must reset the published flag")
	}
}

func TestEnsureIsCreateOrFetch(t *testing.T) {
	s := &Series{Key: "dark", Title: "Dark"}

	lang := s.EnsureLanguage("German")
	again := s.EnsureLanguage("german_")
	if lang != again {
		t.Fatal("EnsureLanguage created a duplicate for an equivalent name")
	}

	q := lang.EnsureSeason("Season 1").EnsureQuality("720p")
	q2 := lang.EnsureSeason("season_1").EnsureQuality("720P")
	if q != q2 {
		t.Fatal("equivalent paths resolved to different leaves")
	}
}

func TestLookupQualityNotFound(t *testing.T) {
	s := &Series{Key: "dark", Languages: LanguageMap{}}
	s.EnsureLanguage("German").EnsureSeason("Season 1").EnsureQuality("720p")

	if _, err := s.LookupQuality(QualityPath{Series: "dark", Language: "german", Season: "season 1", Quality: "1080p"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing quality: got %v, want ErrNotFound", err)
	}
	if _, err := s.LookupQuality(QualityPath{Series: "dark", Language: "english", Season: "season 1", Quality: "720p"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing language: got %v, want ErrNotFound", err)
	}
	if _, err := s.LookupQuality(QualityPath{Series: "dark", Language: "German", Season: "Season_1", Quality: "720P"}); err != nil {
		t.Fatalf("equivalent spelling failed lookup: %v", err)
	}
}

func TestHasPublishedContent(t *testing.T) {
	s := &Series{Key: "dark", Languages: LanguageMap{}}
	q := s.EnsureLanguage("German").EnsureSeason("Season 1").EnsureQuality("720p")

	if s.HasPublishedContent() {
		t.Fatal("empty range must not count as published content")
	}

	q.Range.SetFirstBoundary(100, 42)
	q.Range.SetLastBoundary(109, 42)
	if err := q.Range.Publish(); err != nil {
		t.Fatal(err)
	}
	if !s.HasPublishedContent() {
		t.Fatal("published range not visible through the series")
	}
}
