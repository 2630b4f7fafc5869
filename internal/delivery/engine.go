// ===============================
// internal/delivery/engine.go - Range Delivery
// ===============================

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
	"github.com/c-o-l-d-x/SeriesBoT/internal/telegram"
)

// Summary reports what a delivery run actually accomplished. Delivered
// messages are never rolled back; a terminal error only stops what was left.
type Summary struct {
	Path          string `json:"path"`
	DestinationID int64  `json:"destinationId"`
	Expected      int    `json:"expected"`
	Delivered     int    `json:"delivered"`
	Skipped       int    `json:"skipped"`
	TerminalError string `json:"terminalError,omitempty"`
}

// ProgressEvent is emitted during long deliveries so the ops surface can
// watch a batch drain.
type ProgressEvent struct {
	Path          string    `json:"path"`
	DestinationID int64     `json:"destinationId"`
	Expected      int       `json:"expected"`
	Delivered     int       `json:"delivered"`
	Skipped       int       `json:"skipped"`
	Finished      bool      `json:"finished"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier receives progress events. The websocket hub implements it; a nil
// notifier silences progress reporting.
type Notifier interface {
	BroadcastProgress(event ProgressEvent)
}

// Engine copies every message of a published range to a destination chat,
// in ascending ID order, pacing itself under the platform's rate limits.
type Engine struct {
	transport     telegram.Transport
	limiter       *rate.Limiter
	progressEvery int
	notifier      Notifier
}

// NewEngine builds an engine sending at most messagesPerSecond, reporting
// progress every progressEvery deliveries.
func NewEngine(transport telegram.Transport, messagesPerSecond float64, progressEvery int, notifier Notifier) *Engine {
	if progressEvery <= 0 {
		progressEvery = 10
	}
	return &Engine{
		transport:     transport,
		limiter:       rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
		progressEvery: progressEvery,
		notifier:      notifier,
	}
}

// Deliver walks the range from FirstID to LastID inclusive. A missing
// message is skipped and counted, never fatal. A rate-limit failure sleeps
// out the signaled wait and retries the same message. Any other failure
// aborts; messages already sent stay sent.
func (e *Engine) Deliver(ctx context.Context, path models.QualityPath, rng models.Range, destinationChatID int64) (*Summary, error) {
	summary := &Summary{
		Path:          path.String(),
		DestinationID: destinationChatID,
		Expected:      rng.MessageCount(),
	}

	if !rng.IsComplete() {
		return summary, models.ErrIncompleteRange
	}
	if !rng.Published {
		return summary, fmt.Errorf("range is not published: %w", models.ErrNotFound)
	}
	if rng.MessageCount() > models.MaxBatchMessages {
		return summary, fmt.Errorf("range spans %d messages, above the cap", rng.MessageCount())
	}

	log.Printf("📦 Delivering %s (%d messages) to chat %d", summary.Path, summary.Expected, destinationChatID)

	for id := rng.FirstID; id <= rng.LastID; id++ {
		if err := e.limiter.Wait(ctx); err != nil {
			summary.TerminalError = err.Error()
			e.emit(summary, true)
			return summary, err
		}

		if err := e.copyWithRetry(ctx, destinationChatID, rng.ChannelID, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				summary.Skipped++
				continue
			}
			summary.TerminalError = err.Error()
			e.emit(summary, true)
			return summary, err
		}
		summary.Delivered++

		if summary.Delivered%e.progressEvery == 0 {
			e.emit(summary, false)
		}
	}

	e.emit(summary, true)
	log.Printf("✅ Delivered %d/%d to chat %d (%d skipped)",
		summary.Delivered, summary.Expected, destinationChatID, summary.Skipped)
	return summary, nil
}

// copyWithRetry retries the same message after every rate-limit wait; it
// never advances past a message because of throttling.
func (e *Engine) copyWithRetry(ctx context.Context, destinationChatID, sourceChannelID int64, messageID int) error {
	for {
		err := e.transport.CopyMessage(ctx, destinationChatID, sourceChannelID, messageID)
		var limited *models.RateLimitedError
		if !errors.As(err, &limited) {
			return err
		}

		log.Printf("⏳ Rate limited on message %d, waiting %s", messageID, limited.RetryAfter)
		timer := time.NewTimer(limited.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *Engine) emit(summary *Summary, finished bool) {
	if e.notifier == nil {
		return
	}
	e.notifier.BroadcastProgress(ProgressEvent{
		Path:          summary.Path,
		DestinationID: summary.DestinationID,
		Expected:      summary.Expected,
		Delivered:     summary.Delivered,
		Skipped:       summary.Skipped,
		Finished:      finished,
		Timestamp:     time.Now(),
	})
}
