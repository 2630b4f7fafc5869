package authoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/c-o-l-d-x/SeriesBoT/internal/catalog"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
	"github.com/c-o-l-d-x/SeriesBoT/internal/session"
)

const operatorID = int64(7)

func newMachine(t *testing.T) (*Machine, catalog.Store, *session.Store) {
	t.Helper()
	store := catalog.NewMemoryStore()
	sessions := session.NewStore(time.Hour)
	t.Cleanup(sessions.Close)
	return NewMachine(store, sessions), store, sessions
}

// walkToBoundaries drives the target selection down to Dark/German/Season 1/720p.
func walkToBoundaries(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()
	if _, err := m.Start(ctx, operatorID); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Dark", "German", "Season 1", "720p"} {
		if _, err := m.ChooseName(ctx, operatorID, name); err != nil {
			t.Fatalf("ChooseName(%q) failed: %v", name, err)
		}
	}
}

func TestFullAuthoringWalk(t *testing.T) {
	m, store, sessions := newMachine(t)
	ctx := context.Background()

	walkToBoundaries(t, m)
	if sess := sessions.Get(operatorID); sess.Step != models.StepAwaitingFirstBoundary {
		t.Fatalf("after quality pick: step %s", sess.Step)
	}

	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 100}); err != nil {
		t.Fatal(err)
	}
	prompt, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 109})
	if err != nil {
		t.Fatal(err)
	}
	if prompt.Summary == nil || prompt.Summary.Count != 10 {
		t.Fatalf("summary missing or wrong count: %+v", prompt.Summary)
	}
	if prompt.Summary.Range.Published {
		t.Fatal("range published before confirmation")
	}

	prompt, err = m.Publish(ctx, operatorID)
	if err != nil {
		t.Fatal(err)
	}
	if !prompt.Done {
		t.Fatal("publish did not end the session")
	}
	if sessions.Get(operatorID) != nil {
		t.Fatal("session survived publish")
	}

	series, err := store.GetSeries(ctx, "dark")
	if err != nil {
		t.Fatal(err)
	}
	q, err := series.LookupQuality(models.QualityPath{Series: "dark", Language: "german", Season: "season 1", Quality: "720p"})
	if err != nil {
		t.Fatal(err)
	}
	want := models.Range{FirstID: 100, LastID: 109, ChannelID: 42, Published: true}
	if q.Range != want {
		t.Fatalf("stored range %+v, want %+v", q.Range, want)
	}
	if !series.Published {
		t.Fatal("series not marked published")
	}
}

func TestReversedBoundariesAreReordered(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()

	walkToBoundaries(t, m)
	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 109}); err != nil {
		t.Fatal(err)
	}
	prompt, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 100})
	if err != nil {
		t.Fatal(err)
	}
	if prompt.Summary.Range.FirstID != 100 || prompt.Summary.Range.LastID != 109 {
		t.Fatalf("boundaries not reordered: %+v", prompt.Summary.Range)
	}
}

func TestMissingProvenanceReprompts(t *testing.T) {
	m, _, sessions := newMachine(t)
	ctx := context.Background()

	walkToBoundaries(t, m)
	prompt, err := m.HandleForward(ctx, operatorID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt.Text, "forward") {
		t.Fatalf("expected a corrective prompt, got %q", prompt.Text)
	}
	if sess := sessions.Get(operatorID); sess.Step != models.StepAwaitingFirstBoundary {
		t.Fatalf("step advanced on bad input: %s", sess.Step)
	}

	// The same step still accepts a good forward afterwards.
	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 100}); err != nil {
		t.Fatal(err)
	}
	if sess := sessions.Get(operatorID); sess.Step != models.StepAwaitingLastBoundary {
		t.Fatalf("step after recovery: %s", sess.Step)
	}
}

func TestChannelMismatchReprompts(t *testing.T) {
	m, _, sessions := newMachine(t)
	ctx := context.Background()

	walkToBoundaries(t, m)
	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 100}); err != nil {
		t.Fatal(err)
	}
	prompt, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 99, MessageID: 109})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt.Text, "different channel") {
		t.Fatalf("expected a channel mismatch prompt, got %q", prompt.Text)
	}
	if sess := sessions.Get(operatorID); sess.Step != models.StepAwaitingLastBoundary {
		t.Fatalf("step advanced on mismatched channel: %s", sess.Step)
	}
}

func TestCancelDiscardsWithoutMutating(t *testing.T) {
	m, store, sessions := newMachine(t)
	ctx := context.Background()

	// Publish a range first, then start re-authoring it and bail out.
	walkToBoundaries(t, m)
	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 42, MessageID: 109}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Publish(ctx, operatorID); err != nil {
		t.Fatal(err)
	}

	walkToBoundaries(t, m)
	sess := sessions.Get(operatorID)
	prompt := m.Cancel(operatorID)
	if !prompt.Done {
		t.Fatal("cancel did not end the session")
	}
	if sess.Step != models.StepCancelled {
		t.Fatalf("discarded session left at step %s, want %s", sess.Step, models.StepCancelled)
	}
	if sessions.Get(operatorID) != nil {
		t.Fatal("session survived cancel")
	}

	// The earlier published range is untouched by the abandoned re-edit.
	series, _ := store.GetSeries(ctx, "dark")
	q, err := series.LookupQuality(models.QualityPath{Series: "dark", Language: "german", Season: "season 1", Quality: "720p"})
	if err != nil {
		t.Fatal(err)
	}
	if !q.Range.Published || q.Range.FirstID != 100 {
		t.Fatalf("cancel mutated the published range: %+v", q.Range)
	}
}

func TestNoSessionErrors(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()

	if _, err := m.ChooseName(ctx, operatorID, "Dark"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("ChooseName without session: got %v", err)
	}
	if _, err := m.HandleForward(ctx, operatorID, &Provenance{ChannelID: 1, MessageID: 1}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("HandleForward without session: got %v", err)
	}
	if _, err := m.Publish(ctx, operatorID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Publish without session: got %v", err)
	}
}

func TestMenuOptionsIndexIntoSessionContext(t *testing.T) {
	m, store, sessions := newMachine(t)
	ctx := context.Background()

	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		if _, err := store.UpsertSeries(ctx, name, models.SeriesMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	prompt, err := m.Start(ctx, operatorID)
	if err != nil {
		t.Fatal(err)
	}
	if len(prompt.Options) != 3 {
		t.Fatalf("got %d options, want 3", len(prompt.Options))
	}

	if _, err := m.ChooseOption(ctx, operatorID, 1); err != nil {
		t.Fatal(err)
	}
	sess := sessions.Get(operatorID)
	if sess.SeriesKey != prompt.Options[1].Key {
		t.Fatalf("index 1 resolved to %q, want %q", sess.SeriesKey, prompt.Options[1].Key)
	}
	if sess.Level != models.LevelLanguage {
		t.Fatalf("level after series pick: %s", sess.Level)
	}
}
