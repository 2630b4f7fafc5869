// ===============================
// internal/models/series.go - Catalog Document Model
// ===============================

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Limits for catalog listings
const (
	RecentSeriesLimit = 10
	MaxBatchMessages  = 100000 // sanity cap on a single range
)

// NormalizeName folds a display name into its identity key: lower-case,
// underscores treated as spaces, runs of whitespace collapsed to one space.
// "Dark", "dark" and "DARK__ " all resolve to the same entity.
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Range is a contiguous span of message IDs on one channel, the deliverable
// batch owned by a Quality. A zero boundary means "not set yet".
type Range struct {
	FirstID   int   `json:"firstId"`
	LastID    int   `json:"lastId"`
	ChannelID int64 `json:"channelId"`
	Published bool  `json:"published"`
}

// SetFirstBoundary stores the first boundary. Redefining a boundary always
// drops the published flag until the operator confirms again.
func (r *Range) SetFirstBoundary(messageID int, channelID int64) {
	r.FirstID = messageID
	r.ChannelID = channelID
	r.Published = false
	r.normalize()
}

// SetLastBoundary stores the last boundary and reorders if the operator
// forwarded the two messages in reverse order.
func (r *Range) SetLastBoundary(messageID int, channelID int64) {
	r.LastID = messageID
	r.ChannelID = channelID
	r.Published = false
	r.normalize()
}

func (r *Range) normalize() {
	if r.IsComplete() && r.FirstID > r.LastID {
		r.FirstID, r.LastID = r.LastID, r.FirstID
	}
}

func (r *Range) IsComplete() bool {
	return r.FirstID > 0 && r.LastID > 0
}

// Publish marks the range visible to users. Idempotent once complete.
func (r *Range) Publish() error {
	if !r.IsComplete() {
		return ErrIncompleteRange
	}
	r.Published = true
	return nil
}

func (r *Range) MessageCount() int {
	if !r.IsComplete() {
		return 0
	}
	return r.LastID - r.FirstID + 1
}

// Quality is the leaf of the catalog tree. Each quality owns at most one
// range; redefining replaces the prior one.
type Quality struct {
	Name  string `json:"name"`
	Range Range  `json:"range"`
}

type Season struct {
	Name      string              `json:"name"`
	Qualities map[string]*Quality `json:"qualities"`
}

type Language struct {
	Name      string             `json:"name"`
	PosterURL string             `json:"posterUrl,omitempty"`
	Seasons   map[string]*Season `json:"seasons"`
}

// Series is one catalog document: metadata plus the nested
// language -> season -> quality tree, all keyed by normalized names.
type Series struct {
	Key       string      `json:"key" db:"name_key"`
	Title     string      `json:"title" db:"title"`
	Year      string      `json:"year" db:"year"`
	Genre     string      `json:"genre" db:"genre"`
	Rating    string      `json:"rating" db:"rating"`
	PosterURL string      `json:"posterUrl" db:"poster_url"`
	Published bool        `json:"published" db:"published"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
	Languages LanguageMap `json:"languages" db:"languages"`
}

// SeriesMeta carries the free-text metadata an operator supplies at creation
// or edit time.
type SeriesMeta struct {
	Title  string
	Year   string
	Genre  string
	Rating string
}

// SeriesSummary is the listing projection: enough for menus and the recency
// list, no tree payload.
type SeriesSummary struct {
	Key       string    `json:"key" db:"name_key"`
	Title     string    `json:"title" db:"title"`
	Year      string    `json:"year" db:"year"`
	Published bool      `json:"published" db:"published"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// QualityPath addresses one quality leaf by normalized keys.
type QualityPath struct {
	Series   string
	Language string
	Season   string
	Quality  string
}

func (p QualityPath) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.Series, p.Language, p.Season, p.Quality)
}

// ===============================
// DOCUMENT MUTATION HELPERS
// ===============================

// EnsureLanguage returns the language node, creating it if absent.
// Creation is idempotent create-or-fetch: never a conflict.
func (s *Series) EnsureLanguage(name string) *Language {
	key := NormalizeName(name)
	if s.Languages == nil {
		s.Languages = LanguageMap{}
	}
	if lang, ok := s.Languages[key]; ok {
		return lang
	}
	lang := &Language{Name: strings.TrimSpace(name), Seasons: map[string]*Season{}}
	s.Languages[key] = lang
	return lang
}

func (l *Language) EnsureSeason(name string) *Season {
	key := NormalizeName(name)
	if l.Seasons == nil {
		l.Seasons = map[string]*Season{}
	}
	if season, ok := l.Seasons[key]; ok {
		return season
	}
	season := &Season{Name: strings.TrimSpace(name), Qualities: map[string]*Quality{}}
	l.Seasons[key] = season
	return season
}

// EnsureQuality creates the leaf with an empty range. A quality always owns
// exactly one Range value, complete or not.
func (se *Season) EnsureQuality(name string) *Quality {
	key := NormalizeName(name)
	if se.Qualities == nil {
		se.Qualities = map[string]*Quality{}
	}
	if q, ok := se.Qualities[key]; ok {
		return q
	}
	q := &Quality{Name: strings.TrimSpace(name)}
	se.Qualities[key] = q
	return q
}

// LookupQuality resolves a path below this series, failing with ErrNotFound
// on the first missing segment.
func (s *Series) LookupQuality(path QualityPath) (*Quality, error) {
	lang, ok := s.Languages[NormalizeName(path.Language)]
	if !ok {
		return nil, fmt.Errorf("language %q: %w", path.Language, ErrNotFound)
	}
	season, ok := lang.Seasons[NormalizeName(path.Season)]
	if !ok {
		return nil, fmt.Errorf("season %q: %w", path.Season, ErrNotFound)
	}
	q, ok := season.Qualities[NormalizeName(path.Quality)]
	if !ok {
		return nil, fmt.Errorf("quality %q: %w", path.Quality, ErrNotFound)
	}
	return q, nil
}

// HasPublishedContent reports whether any quality under the series carries a
// published, complete range. Browse menus only show series that do.
func (s *Series) HasPublishedContent() bool {
	for _, lang := range s.Languages {
		if lang.HasPublishedContent() {
			return true
		}
	}
	return false
}

func (l *Language) HasPublishedContent() bool {
	for _, season := range l.Seasons {
		for _, q := range season.Qualities {
			if q.Range.Published && q.Range.IsComplete() {
				return true
			}
		}
	}
	return false
}

// DisplayTitle returns the title with the year appended when known.
func (s *Series) DisplayTitle() string {
	if s.Year != "" {
		return fmt.Sprintf("%s (%s)", s.Title, s.Year)
	}
	return s.Title
}

// ===============================
// JSONB STORAGE TYPES
// ===============================

// LanguageMap is the nested tree column. Stored as a single JSONB value so a
// series document is always written atomically.
type LanguageMap map[string]*Language

// Value implements driver.Valuer for database storage
func (m LanguageMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *LanguageMap) Scan(value interface{}) error {
	if value == nil {
		*m = LanguageMap{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return errors.New("languages column is not a byte slice")
	}
	return json.Unmarshal(data, m)
}
