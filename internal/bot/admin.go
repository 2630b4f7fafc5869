// ===============================
// internal/bot/admin.go - Operator Commands & Authoring Flow
// ===============================

package bot

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/c-o-l-d-x/SeriesBoT/internal/authoring"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
	"github.com/c-o-l-d-x/SeriesBoT/internal/telegram"
)

// Pending destructive actions awaiting the second acknowledgment.
const (
	pendingDeleteAll    = "delete_all"
	pendingDeletePrefix = "delete:"
	pendingPosterPrefix = "poster:"
)

// ===============================
// AUTHORING
// ===============================

func (b *Bot) handleNewSeries(c tele.Context) error {
	prompt, err := b.machine.Start(b.baseCtx, c.Sender().ID)
	if err != nil {
		return c.Send("❌ Could not start authoring: " + err.Error())
	}
	return b.sendPrompt(c, prompt)
}

func (b *Bot) handleCancel(c tele.Context) error {
	prompt := b.machine.Cancel(c.Sender().ID)
	return c.Send(prompt.Text)
}

func (b *Bot) cbPickTarget(c tele.Context) error {
	index, err := strconv.Atoi(strings.TrimSpace(c.Data()))
	if err != nil {
		return nil
	}
	prompt, err := b.machine.ChooseOption(b.baseCtx, c.Sender().ID, index)
	if errors.Is(err, authoring.ErrNoSession) {
		return c.Send("⌛ That menu expired. Run /newseries to start over.")
	}
	if err != nil {
		return b.reportError(c, err)
	}
	return b.sendPrompt(c, prompt)
}

func (b *Bot) cbPublish(c tele.Context) error {
	prompt, err := b.machine.Publish(b.baseCtx, c.Sender().ID)
	if errors.Is(err, authoring.ErrNoSession) {
		return c.Send("⌛ That menu expired. Run /newseries to start over.")
	}
	if err != nil {
		return b.reportError(c, err)
	}
	return b.sendPrompt(c, prompt)
}

func (b *Bot) cbCancelAuthoring(c tele.Context) error {
	prompt := b.machine.Cancel(c.Sender().ID)
	return c.Send(prompt.Text)
}

// sendPrompt renders a machine prompt: option buttons index into the
// session's menu context, a summary gets publish/cancel buttons and, once
// published, the shareable deep link.
func (b *Bot) sendPrompt(c tele.Context, prompt *authoring.Prompt) error {
	text := prompt.Text
	if prompt.Summary != nil {
		text = fmt.Sprintf("%s\n\n%s", prompt.Text, b.formatSummary(prompt.Summary, prompt.Done))
	}

	if len(prompt.Options) > 0 {
		m := &tele.ReplyMarkup{}
		rows := make([]tele.Row, 0, len(prompt.Options)+1)
		for i, opt := range prompt.Options {
			rows = append(rows, m.Row(m.Data(opt.Label, cbAuthPick, strconv.Itoa(i))))
		}
		rows = append(rows, m.Row(m.Data("❌ Cancel", cbAuthCancel)))
		m.Inline(rows...)
		return c.Send(text, m)
	}

	if prompt.Summary != nil && !prompt.Done {
		m := &tele.ReplyMarkup{}
		m.Inline(
			m.Row(m.Data("✅ Publish", cbAuthPublish), m.Data("❌ Cancel", cbAuthCancel)),
		)
		return c.Send(text, m)
	}

	return c.Send(text)
}

func (b *Bot) formatSummary(s *authoring.RangeSummary, published bool) string {
	lines := []string{
		fmt.Sprintf("🎯 Target: %s", s.Path),
		fmt.Sprintf("📨 Messages: %d (%d → %d)", s.Count, s.Range.FirstID, s.Range.LastID),
		fmt.Sprintf("📡 Channel: %d", s.Range.ChannelID),
	}
	if published {
		lines = append(lines, fmt.Sprintf("🔗 Share: %s", b.deepLink(s.Range)))
	}
	return strings.Join(lines, "\n")
}

// ===============================
// INCOMING TEXT / MEDIA DISPATCH
// ===============================

// handleIncoming is the single funnel for non-command messages: pending
// confirmations first, then forwarded boundary messages, then free-text
// names for the authoring walk.
func (b *Bot) handleIncoming(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if !b.auth.IsAuthorized(sender.ID) {
		// Plain users interact through menus only.
		return nil
	}

	sess := b.sessions.Get(sender.ID)
	if sess != nil && sess.PendingAction != "" {
		return b.handlePendingAction(c, sess)
	}

	if sess != nil &&
		(sess.Step == models.StepAwaitingFirstBoundary || sess.Step == models.StepAwaitingLastBoundary) {
		var prov *authoring.Provenance
		if channelID, messageID, ok := telegram.ExtractForwardProvenance(c.Message()); ok {
			prov = &authoring.Provenance{ChannelID: channelID, MessageID: messageID}
		}
		prompt, err := b.machine.HandleForward(b.baseCtx, sender.ID, prov)
		if err != nil {
			return b.reportError(c, err)
		}
		return b.sendPrompt(c, prompt)
	}

	if sess != nil && sess.Step == models.StepSelectingTarget && strings.TrimSpace(c.Text()) != "" {
		prompt, err := b.machine.ChooseName(b.baseCtx, sender.ID, c.Text())
		if err != nil {
			return b.reportError(c, err)
		}
		return b.sendPrompt(c, prompt)
	}

	return nil
}

// handlePendingAction resolves the second acknowledgment of a destructive
// operation, or consumes the poster photo an operator promised.
func (b *Bot) handlePendingAction(c tele.Context, sess *models.Session) error {
	ctx := b.baseCtx
	action := sess.PendingAction

	if strings.HasPrefix(action, pendingPosterPrefix) {
		return b.consumePosterPhoto(c, sess, strings.TrimPrefix(action, pendingPosterPrefix))
	}

	confirmed := strings.EqualFold(strings.TrimSpace(c.Text()), "confirm")
	sess.PendingAction = ""
	b.sessions.Save(sess)

	if !confirmed {
		return c.Send("↩️ Not confirmed, nothing deleted.")
	}

	if action == pendingDeleteAll {
		count, err := b.catalog.DeleteAllSeries(ctx)
		if err != nil {
			return c.Send("❌ Wipe failed: " + err.Error())
		}
		log.Printf("🗑 Operator %d wiped the catalog (%d series)", sess.OperatorID, count)
		return c.Send(fmt.Sprintf("🗑 Catalog wiped. %d series deleted.", count))
	}

	if strings.HasPrefix(action, pendingDeletePrefix) {
		key := strings.TrimPrefix(action, pendingDeletePrefix)
		deleted, err := b.catalog.DeleteSeries(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			return c.Send("⚠️ That series is already gone.")
		}
		if err != nil {
			return c.Send("❌ Delete failed: " + err.Error())
		}
		return c.Send(fmt.Sprintf("🗑 Deleted %s with everything under it.", deleted.DisplayTitle()))
	}

	return nil
}

// ===============================
// CATALOG ADMIN COMMANDS
// ===============================

// handleEditSeries updates metadata: /editseries name | year | genre | rating
func (b *Bot) handleEditSeries(c tele.Context) error {
	parts := strings.Split(c.Message().Payload, "|")
	if strings.TrimSpace(parts[0]) == "" {
		return c.Send("Usage: /editseries name | year | genre | rating")
	}

	meta := models.SeriesMeta{}
	name := strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		meta.Year = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		meta.Genre = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		meta.Rating = strings.TrimSpace(parts[3])
	}

	series, err := b.catalog.UpsertSeries(b.baseCtx, name, meta)
	if err != nil {
		return b.reportError(c, err)
	}
	return c.Send(fmt.Sprintf("✏️ Saved %s.", series.DisplayTitle()))
}

func (b *Bot) handleViewSeries(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /viewseries <name>")
	}

	series, err := b.catalog.GetSeries(b.baseCtx, name)
	if errors.Is(err, models.ErrNotFound) {
		return c.Send("⚠️ No such series.")
	}
	if err != nil {
		return b.reportError(c, err)
	}
	return c.Send(formatSeriesTree(series))
}

func (b *Bot) handleViewAll(c tele.Context) error {
	summaries, err := b.catalog.ListSeriesSummaries(b.baseCtx, 0, false)
	if err != nil {
		return b.reportError(c, err)
	}
	if len(summaries) == 0 {
		return c.Send("📭 The catalog is empty.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📚 %d series:\n", len(summaries)))
	for _, s := range summaries {
		marker := "🔒"
		if s.Published {
			marker = "✅"
		}
		title := s.Title
		if s.Year != "" {
			title = fmt.Sprintf("%s (%s)", s.Title, s.Year)
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", marker, title))
	}
	return c.Send(sb.String())
}

func (b *Bot) handleDeleteSeries(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /deleteseries <name>")
	}

	series, err := b.catalog.GetSeries(b.baseCtx, name)
	if errors.Is(err, models.ErrNotFound) {
		return c.Send("⚠️ No such series.")
	}
	if err != nil {
		return b.reportError(c, err)
	}

	sess := b.sessionFor(c.Sender().ID)
	sess.PendingAction = pendingDeletePrefix + series.Key
	b.sessions.Save(sess)
	return c.Send(fmt.Sprintf(
		"⚠️ This deletes %s with every language, season, quality and batch under it.\nType CONFIRM to proceed.",
		series.DisplayTitle()))
}

func (b *Bot) handleDeleteAll(c tele.Context) error {
	count, err := b.catalog.SeriesCount(b.baseCtx)
	if err != nil {
		return b.reportError(c, err)
	}

	sess := b.sessionFor(c.Sender().ID)
	sess.PendingAction = pendingDeleteAll
	b.sessions.Save(sess)
	return c.Send(fmt.Sprintf(
		"⚠️ This wipes ALL %d series. There is no undo.\nType CONFIRM to proceed.", count))
}

// sessionFor fetches the operator's session, starting one if none is live,
// so pending confirmations have somewhere to hang.
func (b *Bot) sessionFor(operatorID int64) *models.Session {
	if sess := b.sessions.Get(operatorID); sess != nil {
		return sess
	}
	return b.sessions.Begin(operatorID)
}

func formatSeriesTree(series *models.Series) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎬 %s\n", series.DisplayTitle()))
	if series.Genre != "" {
		sb.WriteString(fmt.Sprintf("🏷 %s", series.Genre))
		if series.Rating != "" {
			sb.WriteString(fmt.Sprintf("  ⭐ %s", series.Rating))
		}
		sb.WriteString("\n")
	}
	if series.PosterURL != "" {
		sb.WriteString("🖼 Poster set\n")
	}

	for _, lang := range series.Languages {
		sb.WriteString(fmt.Sprintf("\n🌐 %s\n", lang.Name))
		for _, season := range lang.Seasons {
			sb.WriteString(fmt.Sprintf("  📀 %s\n", season.Name))
			for _, q := range season.Qualities {
				state := "incomplete"
				if q.Range.IsComplete() {
					state = fmt.Sprintf("%d msgs", q.Range.MessageCount())
					if q.Range.Published {
						state += ", published"
					}
				}
				sb.WriteString(fmt.Sprintf("    🎞 %s (%s)\n", q.Name, state))
			}
		}
	}
	return sb.String()
}

// ===============================
// POSTER UPLOAD
// ===============================

func (b *Bot) handleSetPoster(c tele.Context) error {
	if b.posters == nil {
		return c.Send("⚠️ Poster storage is not configured.")
	}
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /setposter <name>, then send the photo.")
	}

	series, err := b.catalog.GetSeries(b.baseCtx, name)
	if errors.Is(err, models.ErrNotFound) {
		return c.Send("⚠️ No such series.")
	}
	if err != nil {
		return b.reportError(c, err)
	}

	sess := b.sessionFor(c.Sender().ID)
	sess.PendingAction = pendingPosterPrefix + series.Key
	b.sessions.Save(sess)
	return c.Send(fmt.Sprintf("🖼 Send the poster photo for %s.", series.DisplayTitle()))
}

func (b *Bot) consumePosterPhoto(c tele.Context, sess *models.Session, seriesKey string) error {
	photo := c.Message().Photo
	if photo == nil {
		return c.Send("🖼 I need a photo. Send one, or /cancel.")
	}

	sess.PendingAction = ""
	b.sessions.Save(sess)

	var previousURL string
	if series, err := b.catalog.GetSeries(b.baseCtx, seriesKey); err == nil {
		previousURL = series.PosterURL
	}

	reader, err := b.tb.File(&photo.File)
	if err != nil {
		return c.Send("❌ Could not download the photo: " + err.Error())
	}
	defer reader.Close()

	url, err := b.posters.UploadPoster(b.baseCtx, seriesKey, reader, "image/jpeg")
	if err != nil {
		return c.Send("❌ Upload failed: " + err.Error())
	}
	if err := b.catalog.SetSeriesPoster(b.baseCtx, seriesKey, url); err != nil {
		return b.reportError(c, err)
	}

	// The replaced poster has no referrers left; reclaim the object.
	if key, ok := b.posters.KeyFromURL(previousURL); ok {
		if err := b.posters.DeletePoster(b.baseCtx, key); err != nil {
			log.Printf("⚠️ Could not delete replaced poster %s: %v", key, err)
		}
	}
	return c.Send("🖼 Poster saved.")
}

// ===============================
// ALLOW-LIST COMMANDS
// ===============================

func (b *Bot) handleAddAuth(c tele.Context) error {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send("Usage: /addauth <user id>")
	}
	if err := b.auth.Grant(b.baseCtx, userID); err != nil {
		return b.reportError(c, err)
	}
	return c.Send(fmt.Sprintf("🔓 User %d can now run operator commands.", userID))
}

func (b *Bot) handleDelAuth(c tele.Context) error {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send("Usage: /delauth <user id>")
	}
	if err := b.auth.Revoke(b.baseCtx, userID); err != nil {
		return b.reportError(c, err)
	}
	return c.Send(fmt.Sprintf("🔒 User %d revoked.", userID))
}

func (b *Bot) handleAuthUsers(c tele.Context) error {
	ids := b.auth.GrantedUsers()
	if len(ids) == 0 {
		return c.Send("👥 No granted users, only static admins.")
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 %d granted users:\n", len(ids)))
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("• %d\n", id))
	}
	return c.Send(sb.String())
}
