// main.go - Series catalog bot with ops API
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/c-o-l-d-x/SeriesBoT/internal/auth"
	"github.com/c-o-l-d-x/SeriesBoT/internal/authoring"
	"github.com/c-o-l-d-x/SeriesBoT/internal/bot"
	"github.com/c-o-l-d-x/SeriesBoT/internal/catalog"
	"github.com/c-o-l-d-x/SeriesBoT/internal/config"
	"github.com/c-o-l-d-x/SeriesBoT/internal/database"
	"github.com/c-o-l-d-x/SeriesBoT/internal/delivery"
	"github.com/c-o-l-d-x/SeriesBoT/internal/handlers"
	"github.com/c-o-l-d-x/SeriesBoT/internal/session"
	"github.com/c-o-l-d-x/SeriesBoT/internal/storage"
	"github.com/c-o-l-d-x/SeriesBoT/internal/telegram"
	"github.com/c-o-l-d-x/SeriesBoT/internal/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Environment)

	// Open the catalog; DATABASE_URL picks the backend
	store, err := catalog.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to open catalog:", err)
	}
	defer store.Close()
	usesDB := cfg.DatabaseURL != ""
	if !usesDB {
		log.Println("💾 No DATABASE_URL, using in-memory catalog")
	}

	// Operator allow-list; grants persist when a database is attached
	authMgr, err := auth.NewManager(cfg.Admins, database.DB)
	if err != nil {
		log.Fatal("Failed to load allow-list:", err)
	}

	// Optional poster storage
	var posters *storage.PosterStore
	if cfg.PosterStorageEnabled() {
		posters, err = storage.NewPosterStore(cfg.R2Config)
		if err != nil {
			log.Fatal("Failed to initialize R2 client:", err)
		}
		log.Println("☁️  R2 poster storage initialized")
	}

	// Authoring sessions and the state machine
	sessions := session.NewStore(cfg.SessionTimeout)
	defer sessions.Close()
	machine := authoring.NewMachine(store, sessions)

	// The bot, its transport, and the delivery engine
	tgBot, err := bot.New(cfg, store, machine, sessions, authMgr, posters)
	if err != nil {
		log.Fatal("Failed to start bot:", err)
	}

	hub := websocket.NewHub()
	transport := telegram.NewBotTransport(tgBot.Telebot())
	engine := delivery.NewEngine(transport, cfg.MessagesPerSecond, cfg.DeliveryPausePoint, hub)
	tgBot.SetEngine(engine, transport)

	// Ops API beside the bot
	router := setupRouter(cfg)
	opsHandler := handlers.NewOpsHandler(store, sessions, hub, usesDB)
	router.GET("/health", opsHandler.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/stats", opsHandler.Stats)
		api.GET("/series/recent", opsHandler.RecentSeries)
		api.GET("/ws/deliveries", opsHandler.DeliveryProgressWS)
	}

	go func() {
		log.Printf("🚀 Ops API listening on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Ops API failed:", err)
		}
	}()

	// Bot polling, until SIGINT/SIGTERM
	go tgBot.Start()

	log.Printf("🌍 Environment: %s", cfg.Environment)
	log.Printf("👮 Static admins: %d", len(cfg.Admins))
	log.Printf("⏱ Session timeout: %s", cfg.SessionTimeout)
	log.Printf("📨 Delivery rate: %.1f msg/s", cfg.MessagesPerSecond)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	tgBot.Stop()
	if usesDB {
		database.Close()
	}
}

func setupRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default()

	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			"Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version",
		},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	return router
}
