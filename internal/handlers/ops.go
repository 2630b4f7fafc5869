// ===============================
// internal/handlers/ops.go - Ops API
// ===============================

package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/c-o-l-d-x/SeriesBoT/internal/catalog"
	"github.com/c-o-l-d-x/SeriesBoT/internal/database"
	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
	"github.com/c-o-l-d-x/SeriesBoT/internal/session"
	"github.com/c-o-l-d-x/SeriesBoT/internal/websocket"
)

// OpsHandler serves the small read-only HTTP surface beside the bot:
// health, stats, the recent catalog listing, and the delivery progress
// websocket.
type OpsHandler struct {
	catalog   catalog.Store
	sessions  *session.Store
	hub       *websocket.Hub
	usesDB    bool
	startTime time.Time
	upgrader  gorillaws.Upgrader
}

func NewOpsHandler(store catalog.Store, sessions *session.Store, hub *websocket.Hub, usesDB bool) *OpsHandler {
	return &OpsHandler{
		catalog:   store,
		sessions:  sessions,
		hub:       hub,
		usesDB:    usesDB,
		startTime: time.Now(),
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Health reports process and database liveness.
func (h *OpsHandler) Health(c *gin.Context) {
	status := gin.H{
		"status":  "healthy",
		"uptime":  time.Since(h.startTime).String(),
		"backend": "memory",
	}

	if h.usesDB {
		status["backend"] = "postgres"
		if err := database.Health(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "connected"
	}

	c.JSON(http.StatusOK, status)
}

// Stats exposes catalog size, live sessions and attached ops clients.
func (h *OpsHandler) Stats(c *gin.Context) {
	count, err := h.catalog.SeriesCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count series"})
		return
	}

	stats := gin.H{
		"series":           count,
		"liveSessions":     h.sessions.Count(),
		"websocketClients": h.hub.ClientCount(),
	}
	if h.usesDB {
		dbStats := database.Stats()
		stats["dbOpenConnections"] = dbStats.OpenConnections
		stats["dbInUse"] = dbStats.InUse
	}
	c.JSON(http.StatusOK, stats)
}

// RecentSeries lists the newest series, the same projection the bot's
// /recent command shows.
func (h *OpsHandler) RecentSeries(c *gin.Context) {
	summaries, err := h.catalog.ListSeriesSummaries(c.Request.Context(), models.RecentSeriesLimit, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list series"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": summaries, "count": len(summaries)})
}

// DeliveryProgressWS upgrades to a websocket streaming delivery progress.
func (h *OpsHandler) DeliveryProgressWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(conn, h.hub)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
