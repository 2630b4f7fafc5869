package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// fakeTransport records copies and fails per scripted message ID.
type fakeTransport struct {
	mu       sync.Mutex
	copied   []int
	failures map[int][]error // popped front-first per attempt
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failures: make(map[int][]error)}
}

func (f *fakeTransport) failWith(messageID int, errs ...error) {
	f.failures[messageID] = append(f.failures[messageID], errs...)
}

func (f *fakeTransport) CopyMessage(ctx context.Context, targetChatID, sourceChatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if queue := f.failures[messageID]; len(queue) > 0 {
		err := queue[0]
		f.failures[messageID] = queue[1:]
		return err
	}
	f.copied = append(f.copied, messageID)
	return nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) error {
	return nil
}

func (f *fakeTransport) copies() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.copied...)
}

func testPath() models.QualityPath {
	return models.QualityPath{Series: "dark", Language: "german", Season: "season 1", Quality: "720p"}
}

func publishedRange(first, last int) models.Range {
	return models.Range{FirstID: first, LastID: last, ChannelID: 42, Published: true}
}

// fast engine: effectively no pacing so tests finish instantly
func newTestEngine(transport *fakeTransport, notifier Notifier) *Engine {
	return NewEngine(transport, 100000, 3, notifier)
}

func TestDeliverAllInOrder(t *testing.T) {
	transport := newFakeTransport()
	engine := newTestEngine(transport, nil)

	summary, err := engine.Deliver(context.Background(), testPath(), publishedRange(100, 109), 555)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Expected != 10 || summary.Delivered != 10 || summary.Skipped != 0 {
		t.Fatalf("summary %+v", summary)
	}
	copies := transport.copies()
	if len(copies) != 10 {
		t.Fatalf("%d copies sent, want 10", len(copies))
	}
	for i, id := range copies {
		if id != 100+i {
			t.Fatalf("copy %d has id %d, want %d (strictly ascending order)", i, id, 100+i)
		}
	}
}

func TestMissingMessageIsSkippedNotFatal(t *testing.T) {
	transport := newFakeTransport()
	transport.failWith(105, models.ErrNotFound)
	engine := newTestEngine(transport, nil)

	summary, err := engine.Deliver(context.Background(), testPath(), publishedRange(100, 109), 555)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Delivered != 9 || summary.Skipped != 1 {
		t.Fatalf("summary %+v, want 9 delivered / 1 skipped", summary)
	}
	for _, id := range transport.copies() {
		if id == 105 {
			t.Fatal("missing message was delivered anyway")
		}
	}
}

func TestRateLimitRetriesSameMessage(t *testing.T) {
	transport := newFakeTransport()
	transport.failWith(102,
		&models.RateLimitedError{RetryAfter: 5 * time.Millisecond},
		&models.RateLimitedError{RetryAfter: 5 * time.Millisecond},
	)
	engine := newTestEngine(transport, nil)

	start := time.Now()
	summary, err := engine.Deliver(context.Background(), testPath(), publishedRange(100, 104), 555)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Delivered != 5 || summary.Skipped != 0 {
		t.Fatalf("summary %+v, rate limiting must never skip", summary)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("finished in %s, backoff not honored", elapsed)
	}
	copies := transport.copies()
	if len(copies) != 5 || copies[2] != 102 || copies[3] != 103 {
		t.Fatalf("copies %v, message 102 must land in order after retries", copies)
	}
}

func TestFatalErrorAborts(t *testing.T) {
	transport := newFakeTransport()
	transport.failWith(103, models.ErrUnreachable)
	engine := newTestEngine(transport, nil)

	summary, err := engine.Deliver(context.Background(), testPath(), publishedRange(100, 109), 555)
	if !errors.Is(err, models.ErrUnreachable) {
		t.Fatalf("got %v, want ErrUnreachable", err)
	}

	// Messages before the failure stay sent; nothing after it goes out.
	if summary.Delivered != 3 {
		t.Fatalf("delivered %d before abort, want 3", summary.Delivered)
	}
	if summary.TerminalError == "" {
		t.Fatal("terminal error missing from summary")
	}
	copies := transport.copies()
	if len(copies) != 3 || copies[len(copies)-1] != 102 {
		t.Fatalf("copies after abort: %v", copies)
	}
}

func TestUnpublishedOrIncompleteRangeRejected(t *testing.T) {
	engine := newTestEngine(newFakeTransport(), nil)

	incomplete := models.Range{FirstID: 100, ChannelID: 42}
	if _, err := engine.Deliver(context.Background(), testPath(), incomplete, 555); !errors.Is(err, models.ErrIncompleteRange) {
		t.Fatalf("incomplete range: got %v", err)
	}

	unpublished := models.Range{FirstID: 100, LastID: 109, ChannelID: 42}
	if _, err := engine.Deliver(context.Background(), testPath(), unpublished, 555); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unpublished range: got %v", err)
	}
}

func TestCancellationStopsDelivery(t *testing.T) {
	transport := newFakeTransport()
	transport.failWith(101, &models.RateLimitedError{RetryAfter: time.Minute})
	engine := newTestEngine(transport, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := engine.Deliver(ctx, testPath(), publishedRange(100, 109), 555)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond) // let it hit the backoff sleep
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("delivery did not stop on cancellation")
	}
}

// collectNotifier records progress events.
type collectNotifier struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (n *collectNotifier) BroadcastProgress(event ProgressEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func TestAbortBeforePacingStillReportsFinished(t *testing.T) {
	notifier := &collectNotifier{}
	engine := newTestEngine(newFakeTransport(), notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := engine.Deliver(ctx, testPath(), publishedRange(100, 109), 555)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if summary.TerminalError == "" {
		t.Fatal("terminal error missing from summary")
	}

	// Watchers must see the run end even when it dies waiting on the pacer.
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) == 0 {
		t.Fatal("no progress events emitted")
	}
	if last := notifier.events[len(notifier.events)-1]; !last.Finished {
		t.Fatalf("final event %+v, want Finished", last)
	}
}

func TestProgressEventsEmitted(t *testing.T) {
	notifier := &collectNotifier{}
	engine := newTestEngine(newFakeTransport(), notifier)

	if _, err := engine.Deliver(context.Background(), testPath(), publishedRange(100, 109), 555); err != nil {
		t.Fatal(err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) == 0 {
		t.Fatal("no progress events emitted")
	}
	last := notifier.events[len(notifier.events)-1]
	if !last.Finished || last.Delivered != 10 {
		t.Fatalf("final event %+v", last)
	}
}
