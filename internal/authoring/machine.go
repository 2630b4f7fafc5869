// ===============================
// internal/authoring/machine.go - Batch Range Authoring
// ===============================

package authoring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// ErrNoSession means the operator has no live authoring session; the caller
// should tell them to start over.
var ErrNoSession = errors.New("no_active_session")

// Catalog is the slice of the catalog store the machine mutates.
type Catalog interface {
	UpsertSeries(ctx context.Context, name string, meta models.SeriesMeta) (*models.Series, error)
	GetSeries(ctx context.Context, name string) (*models.Series, error)
	ListSeriesSummaries(ctx context.Context, limit int, sortByRecency bool) ([]models.SeriesSummary, error)
	EnsureQuality(ctx context.Context, path models.QualityPath) (*models.Quality, error)
	SetFirstBoundary(ctx context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error)
	SetLastBoundary(ctx context.Context, path models.QualityPath, messageID int, channelID int64) (models.Range, error)
	PublishQuality(ctx context.Context, path models.QualityPath) (models.Range, error)
	SetSeriesPublished(ctx context.Context, name string, published bool) error
}

// Sessions is the per-operator session store.
type Sessions interface {
	Begin(operatorID int64) *models.Session
	Get(operatorID int64) *models.Session
	Save(sess *models.Session)
	End(operatorID int64)
}

// Provenance is the forwarded-from metadata extracted by the transport
// layer. Nil provenance on a boundary step means the operator forwarded
// something without it.
type Provenance struct {
	ChannelID int64
	MessageID int
}

// Prompt is what the machine wants shown to the operator next. Options, when
// present, render as buttons; free-text names are always accepted too.
type Prompt struct {
	Text    string
	Options []models.MenuOption
	Summary *RangeSummary
	Done    bool
}

// RangeSummary is the confirmation card shown at ReadyToPublish and on
// publish.
type RangeSummary struct {
	Path  models.QualityPath
	Range models.Range
	Count int
}

// Machine drives the authoring conversation. It consumes canonical events
// (a candidate name, a forwarded boundary, publish, cancel) and is blind to
// whether the operator clicked a button or typed.
type Machine struct {
	catalog  Catalog
	sessions Sessions
}

func NewMachine(catalog Catalog, sessions Sessions) *Machine {
	return &Machine{catalog: catalog, sessions: sessions}
}

// Start opens a fresh session at series selection, replacing any prior one.
func (m *Machine) Start(ctx context.Context, operatorID int64) (*Prompt, error) {
	sess := m.sessions.Begin(operatorID)
	return m.promptSelecting(ctx, sess)
}

// ChooseOption resolves a button press: an index into the last-rendered menu.
func (m *Machine) ChooseOption(ctx context.Context, operatorID int64, index int) (*Prompt, error) {
	sess := m.sessions.Get(operatorID)
	if sess == nil {
		return nil, ErrNoSession
	}
	if index < 0 || index >= len(sess.MenuOptions) {
		return m.promptSelecting(ctx, sess)
	}
	return m.ChooseName(ctx, operatorID, sess.MenuOptions[index].Key)
}

// ChooseName consumes a candidate name for the current tree level, creating
// the entity if it does not exist yet. Once the quality leaf is resolved the
// machine advances to boundary collection.
func (m *Machine) ChooseName(ctx context.Context, operatorID int64, name string) (*Prompt, error) {
	sess := m.sessions.Get(operatorID)
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Step != models.StepSelectingTarget {
		return m.currentPrompt(ctx, sess)
	}

	key := models.NormalizeName(name)
	if key == "" {
		return &Prompt{Text: "⚠️ Name cannot be empty. Try again."}, nil
	}

	switch sess.Level {
	case models.LevelSeries:
		if _, err := m.catalog.GetSeries(ctx, key); errors.Is(err, models.ErrNotFound) {
			if _, err := m.catalog.UpsertSeries(ctx, name, models.SeriesMeta{}); err != nil {
				return nil, err
			}
			log.Printf("📺 Created series %q for operator %d", key, operatorID)
		} else if err != nil {
			return nil, err
		}
		sess.SeriesKey = key
		sess.Level = models.LevelLanguage
	case models.LevelLanguage:
		sess.LanguageKey = key
		sess.Level = models.LevelSeason
	case models.LevelSeason:
		sess.SeasonKey = key
		sess.Level = models.LevelQuality
	case models.LevelQuality:
		sess.QualityKey = key
		if _, err := m.catalog.EnsureQuality(ctx, sess.Path()); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Series vanished mid-session, start the walk over.
				return m.restart(ctx, sess)
			}
			return nil, err
		}
		sess.Step = models.StepAwaitingFirstBoundary
	}

	m.sessions.Save(sess)
	return m.currentPrompt(ctx, sess)
}

// HandleForward consumes a forwarded message during boundary collection.
// Missing provenance and channel mismatches re-prompt the same step rather
// than killing the session.
func (m *Machine) HandleForward(ctx context.Context, operatorID int64, prov *Provenance) (*Prompt, error) {
	sess := m.sessions.Get(operatorID)
	if sess == nil {
		return nil, ErrNoSession
	}

	switch sess.Step {
	case models.StepAwaitingFirstBoundary:
		if prov == nil {
			log.Printf("⚠️ Operator %d: %v", operatorID, models.ErrMissingProvenance)
			return &Prompt{Text: "⚠️ That message carries no forward information. Forward the FIRST message straight from the source channel."}, nil
		}
		if _, err := m.catalog.SetFirstBoundary(ctx, sess.Path(), prov.MessageID, prov.ChannelID); err != nil {
			return nil, err
		}
		sess.FirstID = prov.MessageID
		sess.ChannelID = prov.ChannelID
		sess.Step = models.StepAwaitingLastBoundary
		m.sessions.Save(sess)
		return m.currentPrompt(ctx, sess)

	case models.StepAwaitingLastBoundary:
		if prov == nil {
			log.Printf("⚠️ Operator %d: %v", operatorID, models.ErrMissingProvenance)
			return &Prompt{Text: "⚠️ That message carries no forward information. Forward the LAST message straight from the source channel."}, nil
		}
		if prov.ChannelID != sess.ChannelID {
			log.Printf("⚠️ Operator %d: %v (%d vs %d)", operatorID, models.ErrChannelMismatch, prov.ChannelID, sess.ChannelID)
			return &Prompt{Text: "⚠️ That message comes from a different channel than the first one. Both boundaries must live on the same channel."}, nil
		}
		rng, err := m.catalog.SetLastBoundary(ctx, sess.Path(), prov.MessageID, prov.ChannelID)
		if err != nil {
			return nil, err
		}
		sess.Step = models.StepReadyToPublish
		m.sessions.Save(sess)
		return &Prompt{
			Text:    "📋 Batch captured. Publish it?",
			Summary: &RangeSummary{Path: sess.Path(), Range: rng, Count: rng.MessageCount()},
		}, nil

	default:
		return m.currentPrompt(ctx, sess)
	}
}

// Publish confirms the captured range and ends the session.
func (m *Machine) Publish(ctx context.Context, operatorID int64) (*Prompt, error) {
	sess := m.sessions.Get(operatorID)
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Step != models.StepReadyToPublish {
		return m.currentPrompt(ctx, sess)
	}

	rng, err := m.catalog.PublishQuality(ctx, sess.Path())
	if errors.Is(err, models.ErrIncompleteRange) {
		return &Prompt{Text: "⚠️ The batch is missing a boundary. Forward both messages first."}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := m.catalog.SetSeriesPublished(ctx, sess.SeriesKey, true); err != nil {
		return nil, err
	}

	path := sess.Path()
	sess.Step = models.StepPublished
	m.sessions.End(operatorID)
	log.Printf("✅ Published %s (%d messages) by operator %d", path, rng.MessageCount(), operatorID)
	return &Prompt{
		Text:    "✅ Batch published. Users can request it now.",
		Summary: &RangeSummary{Path: path, Range: rng, Count: rng.MessageCount()},
		Done:    true,
	}, nil
}

// Cancel discards the session from any step. A previously published range is
// left untouched.
func (m *Machine) Cancel(operatorID int64) *Prompt {
	if sess := m.sessions.Get(operatorID); sess != nil {
		sess.Step = models.StepCancelled
		log.Printf("❌ Operator %d cancelled authoring at %s", operatorID, sess.Path())
	}
	m.sessions.End(operatorID)
	return &Prompt{Text: "❌ Authoring cancelled.", Done: true}
}

// restart sends an expired or broken walk back to series selection.
func (m *Machine) restart(ctx context.Context, sess *models.Session) (*Prompt, error) {
	fresh := m.sessions.Begin(sess.OperatorID)
	prompt, err := m.promptSelecting(ctx, fresh)
	if err != nil {
		return nil, err
	}
	prompt.Text = "⚠️ The series is gone. Starting over.\n\n" + prompt.Text
	return prompt, nil
}

// currentPrompt renders the prompt for whatever step the session is in.
func (m *Machine) currentPrompt(ctx context.Context, sess *models.Session) (*Prompt, error) {
	switch sess.Step {
	case models.StepSelectingTarget:
		return m.promptSelecting(ctx, sess)
	case models.StepAwaitingFirstBoundary:
		return &Prompt{Text: fmt.Sprintf("📩 Target: %s\nForward the FIRST message of the batch from the source channel.", sess.Path())}, nil
	case models.StepAwaitingLastBoundary:
		return &Prompt{Text: "📩 Now forward the LAST message of the batch from the same channel."}, nil
	case models.StepReadyToPublish:
		return &Prompt{Text: "📋 Batch captured. Publish it?"}, nil
	default:
		return &Prompt{Text: "Nothing in progress. Start a new batch when ready.", Done: true}, nil
	}
}

// promptSelecting renders the menu for the tree level being resolved and
// remembers the options so button callbacks can reference them by index.
func (m *Machine) promptSelecting(ctx context.Context, sess *models.Session) (*Prompt, error) {
	options, err := m.levelOptions(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.MenuOptions = options
	m.sessions.Save(sess)

	var text string
	switch sess.Level {
	case models.LevelSeries:
		text = "🎬 Pick a series or type a new name:"
	case models.LevelLanguage:
		text = fmt.Sprintf("🌐 Series: %s\nPick a language or type a new one:", sess.SeriesKey)
	case models.LevelSeason:
		text = fmt.Sprintf("📀 %s / %s\nPick a season or type a new one:", sess.SeriesKey, sess.LanguageKey)
	case models.LevelQuality:
		text = fmt.Sprintf("🎞 %s / %s / %s\nPick a quality or type a new one:", sess.SeriesKey, sess.LanguageKey, sess.SeasonKey)
	}
	return &Prompt{Text: text, Options: options}, nil
}

// levelOptions lists the existing children of the resolved path so far.
func (m *Machine) levelOptions(ctx context.Context, sess *models.Session) ([]models.MenuOption, error) {
	if sess.Level == models.LevelSeries {
		summaries, err := m.catalog.ListSeriesSummaries(ctx, 0, false)
		if err != nil {
			return nil, err
		}
		options := make([]models.MenuOption, 0, len(summaries))
		for _, s := range summaries {
			options = append(options, models.MenuOption{Key: s.Key, Label: s.Title})
		}
		return options, nil
	}

	series, err := m.catalog.GetSeries(ctx, sess.SeriesKey)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	options := []models.MenuOption{}
	switch sess.Level {
	case models.LevelLanguage:
		for key, lang := range series.Languages {
			options = append(options, models.MenuOption{Key: key, Label: lang.Name})
		}
	case models.LevelSeason:
		if lang, ok := series.Languages[sess.LanguageKey]; ok {
			for key, season := range lang.Seasons {
				options = append(options, models.MenuOption{Key: key, Label: season.Name})
			}
		}
	case models.LevelQuality:
		if lang, ok := series.Languages[sess.LanguageKey]; ok {
			if season, ok := lang.Seasons[sess.SeasonKey]; ok {
				for key, q := range season.Qualities {
					options = append(options, models.MenuOption{Key: key, Label: q.Name})
				}
			}
		}
	}
	sort.Slice(options, func(i, j int) bool {
		return strings.Compare(options[i].Key, options[j].Key) < 0
	})
	return options, nil
}
