package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ooo-sentinel/config"
	"ooo-sentinel/conflict"
	"ooo-sentinel/gateway"
	"ooo-sentinel/lease"
	"ooo-sentinel/ledger"
	"ooo-sentinel/security"
	"ooo-sentinel/sink"
	"ooo-sentinel/streams"
	"ooo-sentinel/syncer"
)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Service string `json:"service"`
}

const VERSION = "0.1.0"

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	log.Println("Starting OOO Sentinel...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Redis
	redisURL := cfg.RedisURL
	if strings.HasPrefix(redisURL, "redis://") {
		redisURL = strings.TrimPrefix(redisURL, "redis://")
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	// Credentials are resolved once and cached for the process lifetime.
	creds, err := security.NewProvider(cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to load Google credentials: %v", err)
	}

	gw := gateway.NewGoogleGateway(creds)
	engine := syncer.NewEngine(gw)

	leaseStore := lease.NewStore(redisClient)
	leaseManager := lease.NewManager(leaseStore, gw, engine, cfg.TargetUsers, cfg.WebhookURL, cfg.WatchTTL, cfg.MinLease)

	processedStore := ledger.NewStore(redisClient)
	alertStore := conflict.NewAlertStore(redisClient)

	rows := sink.NewSheetAppender(creds, cfg.SheetID, cfg.SheetRange)
	poster := sink.NewSlackPoster(cfg.SlackWebhookURL)
	audit := streams.NewAuditTrail(redisClient)

	conflicts := conflict.NewAggregator(gw, alertStore, poster, conflict.Options{
		Subjects:   cfg.TargetUsers,
		Overrides:  cfg.UserLabels,
		Threshold:  cfg.Threshold,
		Location:   cfg.Location,
		SheetName:  cfg.SheetName,
		Mentions:   cfg.SlackMentions,
		CCMentions: cfg.SlackCCMentions,
	})

	webhookHandler := NewWebhookHandler(leaseManager, engine, processedStore, conflicts, rows, audit, cfg.Location, cfg.UserLabels)
	channelHandler := NewChannelHandler(leaseManager)

	sweeper := NewChannelSweeper(leaseManager, cfg.SweepCron)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Failed to start channel sweep: %v", err)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	webhookHandler.RegisterRoutes(r)
	channelHandler.RegisterRoutes(r)

	srv := &http.Server{
		Handler:      r,
		Addr:         "0.0.0.0:" + cfg.Port,
		WriteTimeout: 180 * time.Second,
		ReadTimeout:  180 * time.Second,
	}

	log.Printf("OOO Sentinel v%s starting on %s", VERSION, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := HealthResponse{
		OK:      true,
		Version: VERSION,
		Service: "ooo-sentinel",
	}

	json.NewEncoder(w).Encode(response)
}
