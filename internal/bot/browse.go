// ===============================
// internal/bot/browse.go - User Browsing & Delivery
// ===============================

package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/c-o-l-d-x/SeriesBoT/internal/catalog"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

type browseLevel int

const (
	levelSeries browseLevel = iota
	levelLanguage
	levelSeason
	levelQuality
)

const deepLinkPrefix = "get_"

// handleStart greets the user and opens the catalog, or fulfils a deep link
// straight away.
func (b *Bot) handleStart(c tele.Context) error {
	payload := strings.TrimSpace(c.Message().Payload)
	if strings.HasPrefix(payload, deepLinkPrefix) {
		return b.handleDeepLink(c, payload)
	}
	return b.showSeriesMenu(c, randomGreeting())
}

// handleDeepLink fulfils a t.me/bot?start=get_<channel>_<first>_<last> link.
// The link is only a locator: it must resolve to a published range in the
// catalog, otherwise anyone could mint links draining arbitrary channels.
func (b *Bot) handleDeepLink(c tele.Context, payload string) error {
	parts := strings.Split(strings.TrimPrefix(payload, deepLinkPrefix), "_")
	if len(parts) != 3 {
		return c.Send("⚠️ That link looks broken.")
	}
	channelID, err1 := strconv.ParseInt(parts[0], 10, 64)
	firstID, err2 := strconv.Atoi(parts[1])
	lastID, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || firstID <= 0 || lastID <= 0 {
		return c.Send("⚠️ That link looks broken.")
	}

	path, rng, err := resolveSharedRange(b.baseCtx, b.catalog, channelID, firstID, lastID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Send("⚠️ That link doesn't point at anything published.")
	}
	if err != nil {
		return c.Send("❌ Something went wrong.")
	}
	return b.deliverRange(c, path, rng)
}

// resolveSharedRange finds the quality whose published range matches the
// link exactly. Fails with ErrNotFound when no published range does.
func resolveSharedRange(ctx context.Context, store catalog.Store, channelID int64, firstID, lastID int) (models.QualityPath, models.Range, error) {
	summaries, err := store.ListSeriesSummaries(ctx, 0, false)
	if err != nil {
		return models.QualityPath{}, models.Range{}, err
	}

	for _, summary := range summaries {
		series, err := store.GetSeries(ctx, summary.Key)
		if err != nil {
			continue
		}
		for langKey, lang := range series.Languages {
			for seasonKey, season := range lang.Seasons {
				for qualKey, q := range season.Qualities {
					rng := q.Range
					if rng.Published && rng.IsComplete() &&
						rng.ChannelID == channelID && rng.FirstID == firstID && rng.LastID == lastID {
						path := models.QualityPath{
							Series:   series.Key,
							Language: langKey,
							Season:   seasonKey,
							Quality:  qualKey,
						}
						return path, rng, nil
					}
				}
			}
		}
	}
	return models.QualityPath{}, models.Range{}, fmt.Errorf("no published range %d..%d on channel %d: %w",
		firstID, lastID, channelID, models.ErrNotFound)
}

// handleRecent lists the newest published series.
func (b *Bot) handleRecent(c tele.Context) error {
	summaries, err := b.catalog.ListSeriesSummaries(b.baseCtx, models.RecentSeriesLimit, true)
	if err != nil {
		return c.Send("❌ Something went wrong.")
	}

	var sb strings.Builder
	sb.WriteString("🆕 Latest additions:\n")
	shown := 0
	for _, s := range summaries {
		if !s.Published {
			continue
		}
		title := s.Title
		if s.Year != "" {
			title = fmt.Sprintf("%s (%s)", s.Title, s.Year)
		}
		sb.WriteString(fmt.Sprintf("• %s\n", title))
		shown++
	}
	if shown == 0 {
		return c.Send("📭 Nothing published yet. Check back soon!")
	}
	sb.WriteString("\nUse /start to grab one.")
	return c.Send(sb.String())
}

// ===============================
// BROWSING MENUS
// ===============================

func (b *Bot) showSeriesMenu(c tele.Context, header string) error {
	summaries, err := b.catalog.ListSeriesSummaries(b.baseCtx, 0, true)
	if err != nil {
		return c.Send("❌ Something went wrong.")
	}

	keys := []string{}
	labels := []string{}
	for _, s := range summaries {
		if !s.Published {
			continue
		}
		title := s.Title
		if s.Year != "" {
			title = fmt.Sprintf("%s (%s)", s.Title, s.Year)
		}
		keys = append(keys, s.Key)
		labels = append(labels, title)
	}
	if len(keys) == 0 {
		return c.Send("📭 Nothing published yet. Check back soon!")
	}

	b.setBrowseState(c.Sender().ID, &browseState{Options: keys})
	return c.Send(header+"\n\n🎬 Pick a series:", optionMarkup(cbBrowseSeries, labels, false))
}

// cbBrowseLevel resolves a menu pick at the given level and renders the
// next one down; picking a quality triggers delivery.
func (b *Bot) cbBrowseLevel(level browseLevel) tele.HandlerFunc {
	return func(c tele.Context) error {
		state := b.getBrowseState(c.Sender().ID)
		if state == nil {
			return c.Send("⌛ That menu expired. Hit /start again.")
		}
		index, err := strconv.Atoi(strings.TrimSpace(c.Data()))
		if err != nil || index < 0 || index >= len(state.Options) {
			return c.Send("⌛ That menu expired. Hit /start again.")
		}
		key := state.Options[index]

		switch level {
		case levelSeries:
			state.SeriesKey = key
			state.LanguageKey, state.SeasonKey = "", ""
		case levelLanguage:
			state.LanguageKey = key
			state.SeasonKey = ""
		case levelSeason:
			state.SeasonKey = key
		case levelQuality:
			return b.deliverQuality(c, models.QualityPath{
				Series:   state.SeriesKey,
				Language: state.LanguageKey,
				Season:   state.SeasonKey,
				Quality:  key,
			})
		}
		return b.renderBrowseMenu(c, state)
	}
}

// cbBrowseBack pops one level of the walk.
func (b *Bot) cbBrowseBack(c tele.Context) error {
	state := b.getBrowseState(c.Sender().ID)
	if state == nil {
		return c.Send("⌛ That menu expired. Hit /start again.")
	}
	switch {
	case state.SeasonKey != "":
		state.SeasonKey = ""
	case state.LanguageKey != "":
		state.LanguageKey = ""
	default:
		return b.showSeriesMenu(c, "🎬 Back to the catalog.")
	}
	return b.renderBrowseMenu(c, state)
}

// renderBrowseMenu shows the children of the path picked so far, filtered
// to branches that actually have published content.
func (b *Bot) renderBrowseMenu(c tele.Context, state *browseState) error {
	series, err := b.catalog.GetSeries(b.baseCtx, state.SeriesKey)
	if errors.Is(err, models.ErrNotFound) {
		return b.showSeriesMenu(c, "⚠️ That series is gone.")
	}
	if err != nil {
		return c.Send("❌ Something went wrong.")
	}

	var keys, labels []string
	var unique, header string

	switch {
	case state.LanguageKey == "":
		unique = cbBrowseLang
		header = fmt.Sprintf("🌐 %s\nPick a language:", series.DisplayTitle())
		for key, lang := range series.Languages {
			if lang.HasPublishedContent() {
				keys = append(keys, key)
				labels = append(labels, lang.Name)
			}
		}
	case state.SeasonKey == "":
		unique = cbBrowseSeason
		header = "📀 Pick a season:"
		if lang, ok := series.Languages[state.LanguageKey]; ok {
			for key, season := range lang.Seasons {
				for _, q := range season.Qualities {
					if q.Range.Published && q.Range.IsComplete() {
						keys = append(keys, key)
						labels = append(labels, season.Name)
						break
					}
				}
			}
		}
	default:
		unique = cbBrowseQuality
		header = "🎞 Pick a quality:"
		if lang, ok := series.Languages[state.LanguageKey]; ok {
			if season, ok := lang.Seasons[state.SeasonKey]; ok {
				for key, q := range season.Qualities {
					if q.Range.Published && q.Range.IsComplete() {
						keys = append(keys, key)
						labels = append(labels, fmt.Sprintf("%s (%d msgs)", q.Name, q.Range.MessageCount()))
					}
				}
			}
		}
	}

	if len(keys) == 0 {
		return b.showSeriesMenu(c, "📭 Nothing published on that branch yet.")
	}

	sortOptions(keys, labels)
	state.Options = keys
	b.setBrowseState(c.Sender().ID, state)
	return c.Send(header, optionMarkup(unique, labels, true))
}

// ===============================
// DELIVERY
// ===============================

// deliverQuality looks the range up fresh from the catalog, then hands it
// to the engine. Delivery reads the range once and never holds catalog
// state while copying.
func (b *Bot) deliverQuality(c tele.Context, path models.QualityPath) error {
	series, err := b.catalog.GetSeries(b.baseCtx, path.Series)
	if err != nil {
		return c.Send("⚠️ That batch is gone.")
	}
	q, err := series.LookupQuality(path)
	if err != nil {
		return c.Send("⚠️ That batch is gone.")
	}
	if !q.Range.Published || !q.Range.IsComplete() {
		return c.Send("⚠️ That batch is not available.")
	}
	return b.deliverRange(c, path, q.Range)
}

// deliverRange runs the copy loop in the background so the update handler
// returns immediately; the user gets a summary message at the end. The
// browse walk is over once delivery starts, so its state is torn down.
func (b *Bot) deliverRange(c tele.Context, path models.QualityPath, rng models.Range) error {
	destination := c.Chat().ID
	b.clearBrowseState(c.Sender().ID)
	if err := c.Send(fmt.Sprintf("📦 Sending %d messages, hold on...", rng.MessageCount())); err != nil {
		return err
	}

	go func() {
		summary, err := b.engine.Deliver(b.baseCtx, path, rng, destination)
		if err != nil {
			log.Printf("❌ Delivery to chat %d aborted: %v", destination, err)
			b.notify(destination, fmt.Sprintf("⚠️ Delivery stopped after %d of %d messages.", summary.Delivered, summary.Expected))
			return
		}
		text := fmt.Sprintf("✅ Done! Sent %d messages.", summary.Delivered)
		if summary.Skipped > 0 {
			text += fmt.Sprintf(" (%d missing ones skipped)", summary.Skipped)
		}
		b.notify(destination, text)
	}()
	return nil
}

func (b *Bot) notify(chatID int64, text string) {
	if err := b.transport.SendText(b.baseCtx, chatID, text); err != nil {
		log.Printf("⚠️ Could not notify chat %d: %v", chatID, err)
	}
}

// deepLink builds the shareable t.me link that triggers a direct delivery.
func (b *Bot) deepLink(rng models.Range) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d_%d_%d",
		b.tb.Me.Username, deepLinkPrefix, rng.ChannelID, rng.FirstID, rng.LastID)
}

// ===============================
// BROWSE STATE & MARKUP HELPERS
// ===============================

func (b *Bot) getBrowseState(userID int64) *browseState {
	b.browseMu.Lock()
	defer b.browseMu.Unlock()

	state, ok := b.browse[userID]
	if !ok {
		return nil
	}
	if time.Since(state.lastSeen) > b.browseTTL {
		delete(b.browse, userID)
		return nil
	}
	return state
}

func (b *Bot) setBrowseState(userID int64, state *browseState) {
	state.lastSeen = time.Now()
	b.browseMu.Lock()
	b.browse[userID] = state
	b.browseMu.Unlock()
}

func (b *Bot) clearBrowseState(userID int64) {
	b.browseMu.Lock()
	delete(b.browse, userID)
	b.browseMu.Unlock()
}

func optionMarkup(unique string, labels []string, withBack bool) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(labels)+1)
	for i, label := range labels {
		rows = append(rows, m.Row(m.Data(label, unique, strconv.Itoa(i))))
	}
	if withBack {
		rows = append(rows, m.Row(m.Data("⬅️ Back", cbBrowseBack)))
	}
	m.Inline(rows...)
	return m
}

// sortOptions keeps keys and labels aligned while ordering by key.
func sortOptions(keys, labels []string) {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, c int) bool { return keys[idx[a]] < keys[idx[c]] })

	sortedKeys := make([]string, len(keys))
	sortedLabels := make([]string, len(labels))
	for i, j := range idx {
		sortedKeys[i] = keys[j]
		sortedLabels[i] = labels[j]
	}
	copy(keys, sortedKeys)
	copy(labels, sortedLabels)
}
