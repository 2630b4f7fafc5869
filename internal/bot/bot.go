// ===============================
// internal/bot/bot.go - Telegram Bot Surface
// ===============================

package bot

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/c-o-l-d-x/SeriesBoT/internal/auth"
	"github.com/c-o-l-d-x/SeriesBoT/internal/authoring"
	"github.com/c-o-l-d-x/SeriesBoT/internal/catalog"
	"github.com/c-o-l-d-x/SeriesBoT/internal/config"
	"github.com/c-o-l-d-x/SeriesBoT/internal/delivery"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
	"github.com/c-o-l-d-x/SeriesBoT/internal/session"
	"github.com/c-o-l-d-x/SeriesBoT/internal/storage"
	"github.com/c-o-l-d-x/SeriesBoT/internal/telegram"
)

// Callback button uniques. Payloads carry only indexes into server-side
// menu context, never catalog names.
const (
	cbAuthPick    = "auth_pick"
	cbAuthPublish = "auth_publish"
	cbAuthCancel  = "auth_cancel"

	cbBrowseSeries  = "br_series"
	cbBrowseLang    = "br_lang"
	cbBrowseSeason  = "br_season"
	cbBrowseQuality = "br_quality"
	cbBrowseBack    = "br_back"
)

var startGreetings = []string{
	"🎬 Welcome! Pick a series below and I will send you every episode in order.",
	"🍿 Hey there! Browse the catalog and grab a batch.",
	"📺 Hello! Choose a series to get started.",
}

// Bot wires the Telegram update stream to the authoring machine, the
// catalog and the delivery engine.
type Bot struct {
	tb        *tele.Bot
	cfg       *config.Config
	catalog   catalog.Store
	machine   *authoring.Machine
	sessions  *session.Store
	engine    *delivery.Engine
	transport telegram.Transport
	auth      *auth.Manager
	posters   *storage.PosterStore // nil when R2 is not configured

	// Per-user browsing context, kept server-side because callback data
	// cannot carry full catalog paths. Bounded: entries expire after the
	// session timeout and are torn down once a delivery starts.
	browseMu  sync.Mutex
	browse    map[int64]*browseState
	browseTTL time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
}

type browseState struct {
	SeriesKey   string
	LanguageKey string
	SeasonKey   string
	Options     []string // keys of the last-rendered menu, by index
	lastSeen    time.Time
}

// New builds the bot and registers every handler. posters may be nil. The
// delivery engine attaches afterwards via SetEngine, since it needs the
// transport this constructor creates.
func New(
	cfg *config.Config,
	store catalog.Store,
	machine *authoring.Machine,
	sessions *session.Store,
	authMgr *auth.Manager,
	posters *storage.PosterStore,
) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Printf("❌ Bot handler error: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		tb:        tb,
		cfg:       cfg,
		catalog:   store,
		machine:   machine,
		sessions:  sessions,
		auth:      authMgr,
		posters:   posters,
		browse:    make(map[int64]*browseState),
		browseTTL: cfg.SessionTimeout,
		baseCtx:   ctx,
		cancel:    cancel,
	}
	b.registerHandlers()
	go b.sweepBrowseStates()
	return b, nil
}

// sweepBrowseStates reclaims abandoned browse menus; lazy expiry on access
// covers the rest.
func (b *Bot) sweepBrowseStates() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.baseCtx.Done():
			return
		case <-ticker.C:
			b.browseMu.Lock()
			for id, state := range b.browse {
				if time.Since(state.lastSeen) > b.browseTTL {
					delete(b.browse, id)
				}
			}
			b.browseMu.Unlock()
		}
	}
}

// Telebot exposes the underlying bot for the delivery transport adapter.
func (b *Bot) Telebot() *tele.Bot {
	return b.tb
}

// SetEngine attaches the delivery engine and the transport it runs on.
// Must happen before Start.
func (b *Bot) SetEngine(engine *delivery.Engine, transport telegram.Transport) {
	b.engine = engine
	b.transport = transport
}

// Start begins long polling. Blocks until Stop.
func (b *Bot) Start() {
	log.Printf("🤖 Bot @%s is up", b.tb.Me.Username)
	b.tb.Start()
}

// Stop tears down polling and cancels in-flight deliveries.
func (b *Bot) Stop() {
	b.cancel()
	b.tb.Stop()
	log.Println("🛑 Bot stopped")
}

func (b *Bot) registerHandlers() {
	// User surface
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/recent", b.handleRecent)
	b.tb.Handle("/help", b.handleHelp)

	// Admin surface
	b.tb.Handle("/newseries", b.adminOnly(b.handleNewSeries))
	b.tb.Handle("/editseries", b.adminOnly(b.handleEditSeries))
	b.tb.Handle("/viewseries", b.adminOnly(b.handleViewSeries))
	b.tb.Handle("/viewall", b.adminOnly(b.handleViewAll))
	b.tb.Handle("/deleteseries", b.adminOnly(b.handleDeleteSeries))
	b.tb.Handle("/deleteall", b.adminOnly(b.handleDeleteAll))
	b.tb.Handle("/setposter", b.adminOnly(b.handleSetPoster))
	b.tb.Handle("/cancel", b.adminOnly(b.handleCancel))

	// Allow-list management, static admins only
	b.tb.Handle("/addauth", b.staticAdminOnly(b.handleAddAuth))
	b.tb.Handle("/delauth", b.staticAdminOnly(b.handleDelAuth))
	b.tb.Handle("/authusers", b.staticAdminOnly(b.handleAuthUsers))

	// Authoring callbacks
	b.handleCallback(cbAuthPick, b.cbPickTarget)
	b.handleCallback(cbAuthPublish, b.cbPublish)
	b.handleCallback(cbAuthCancel, b.cbCancelAuthoring)

	// Browsing callbacks
	b.handleCallback(cbBrowseSeries, b.cbBrowseLevel(levelSeries))
	b.handleCallback(cbBrowseLang, b.cbBrowseLevel(levelLanguage))
	b.handleCallback(cbBrowseSeason, b.cbBrowseLevel(levelSeason))
	b.handleCallback(cbBrowseQuality, b.cbBrowseLevel(levelQuality))
	b.handleCallback(cbBrowseBack, b.cbBrowseBack)

	// Free text and forwarded media all route through one dispatcher so a
	// forwarded photo works as a boundary just like a forwarded text post.
	for _, event := range []string{
		tele.OnText, tele.OnPhoto, tele.OnVideo,
		tele.OnDocument, tele.OnAudio, tele.OnAnimation,
	} {
		b.tb.Handle(event, b.handleIncoming)
	}
}

func (b *Bot) handleCallback(unique string, handler tele.HandlerFunc) {
	btn := tele.Btn{Unique: unique}
	b.tb.Handle(&btn, func(c tele.Context) error {
		defer func() { _ = c.Respond() }()
		return handler(c)
	})
}

// adminOnly gates a handler on the allow-list (static admins plus grants).
func (b *Bot) adminOnly(handler tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !b.auth.IsAuthorized(c.Sender().ID) {
			return c.Send("🚫 You are not allowed to do that.")
		}
		return handler(c)
	}
}

// staticAdminOnly gates on the environment-configured admins only.
func (b *Bot) staticAdminOnly(handler tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !b.auth.IsAdmin(c.Sender().ID) {
			return c.Send("🚫 Admins only.")
		}
		return handler(c)
	}
}

func (b *Bot) handleHelp(c tele.Context) error {
	if c.Sender() != nil && b.auth.IsAuthorized(c.Sender().ID) {
		return c.Send(adminHelpText)
	}
	return c.Send(userHelpText)
}

const userHelpText = `📖 Commands:
/start - browse the catalog
/recent - newest additions`

const adminHelpText = `📖 Operator commands:
/newseries - author a new batch (walks series/language/season/quality, then two forwarded boundary messages)
/editseries name | year | genre | rating - update metadata
/viewseries <name> - inspect one series
/viewall - list everything
/deleteseries <name> - delete one series (asks to confirm)
/deleteall - wipe the catalog (asks to confirm)
/setposter <name> - then send a photo
/cancel - abandon the current authoring session

Admin only:
/addauth <user id>, /delauth <user id>, /authusers`

func randomGreeting() string {
	return startGreetings[rand.Intn(len(startGreetings))]
}

// reportError renders an error: recoverable ones invite another try, the
// rest read as terminal.
func (b *Bot) reportError(c tele.Context, err error) error {
	if models.IsRecoverable(err) {
		return c.Send("⚠️ " + err.Error() + ". Try again.")
	}
	log.Printf("❌ Operation failed for user %d: %v", c.Sender().ID, err)
	return c.Send("❌ Stopped: " + err.Error())
}
