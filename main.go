package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/relaybot/internal/config"
	_ "modernc.org/sqlite"
)

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store Store
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteStore(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		store = s
	case "postgres":
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", c.PostgresDSN); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		p, err := NewPostgresStore(c.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		store = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory store (not recommended for production)")
		store = NewMemStore()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s", c.DBAdapter)
	}

	client := NewTelegramClient(c.BotToken)

	allow := NewAllowList(c.AllowedUserIDs)
	if len(c.AllowedUserIDs) == 0 {
		log.Println("WARNING: ALLOWED_USER_IDS is empty; every command will be rejected")
	}
	limiter := NewLimiter(c.RateLimitMax, time.Duration(c.RateLimitWindowSeconds)*time.Second)
	recorder := NewRecorder(store, 256)

	handlers := NewHandlers(store, client.SendMessage)
	if c.OpenAIAPIKey != "" {
		handlers.ai = NewAIClient(c.OpenAIBaseURL, c.OpenAIAPIKey, c.OpenAIModel, c.OpenAIMaxRPM)
	}
	if c.HomeAssistantURL != "" {
		handlers.home = NewHomeAssistantClient(c.HomeAssistantURL, c.HomeAssistantToken)
	}
	if c.VehicleAPIURL != "" {
		handlers.vehicle = NewVehicleClient(c.VehicleAPIURL, c.VehicleToken)
	}
	if c.AlphaVantageAPIKey != "" {
		handlers.finance = NewFinanceClient(c.AlphaVantageAPIKey)
	}
	if c.NewsAPIKey != "" {
		handlers.news = NewNewsClient(c.NewsAPIKey)
	}
	if c.NotionToken != "" && c.NotionPageID != "" {
		handlers.notes = NewNotesClient(c.NotionToken, c.NotionPageID)
	}

	registry := NewRegistry()
	handlers.RegisterAll(registry)

	pipeline := NewPipeline(allow, limiter, recorder, registry)
	bot := NewBot(client, pipeline, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if me, err := client.GetMe(ctx); err != nil {
		log.Printf("getMe failed (continuing): %v", err)
	} else {
		log.Printf("Authorized as @%s", me.Username)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if c.WebhookURL != "" {
		log.Println("Starting in webhook mode...")
		if err := client.SetWebhook(ctx, c.WebhookURL, c.WebhookSecret); err != nil {
			log.Fatalf("set webhook: %v", err)
		}
		server := NewWebhookServer(bot, allow, c.WebhookSecret, c.AlertAPIKeyHash, c.AlertJWTSecret)
		srv := &http.Server{
			Handler:      server.Handler(),
			Addr:         ":" + c.Port,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Listening on :%s", c.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("server error: %v", err)
			}
		}()
		<-quit
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	} else {
		log.Println("Starting in polling mode...")
		if err := client.DeleteWebhook(ctx); err != nil {
			log.Printf("delete webhook: %v", err)
		}
		go func() {
			<-quit
			cancel()
		}()
		if err := bot.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("polling stopped: %v", err)
		}
	}

	// Drain pending activity records before closing the store.
	recorder.Close()
	if closer, ok := store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	log.Println("Bot exited properly")
}
