package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"threatwatch/internal/api"
	"threatwatch/internal/config"
	"threatwatch/internal/ranking"
	"threatwatch/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file, environment variables win
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	} else {
		log.Println("✅ Loaded environment from .env")
	}

	log.Println("🛰  ================================")
	log.Println("🛰   THREATWATCH - RANKING ENGINE")
	log.Println("🛰  ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	rankingCfg := appConfig.Ranking
	redisCfg := appConfig.Redis
	serverCfg := appConfig.Server

	log.Printf("⚙️ Engine: active window %s, high-risk threshold %d, max page %d",
		rankingCfg.ActiveWindow, rankingCfg.HighRiskThreshold, rankingCfg.MaxPageSize)
	log.Printf("🗄  Redis: %s (db %d)", redisCfg.Addr, redisCfg.DB)

	// Connect the backing store
	st := store.New(redisCfg)
	ctx, cancel := context.WithTimeout(context.Background(), redisCfg.DialTimeout)
	if err := st.Ping(ctx); err != nil {
		// The engine degrades to empty pages while the store is down,
		// so a failed ping is a warning, not a startup failure.
		log.Printf("⚠️ Redis unreachable at startup: %v", err)
	} else {
		log.Println("✅ Redis connected")
	}
	cancel()

	// The engine is stateless between requests; one instance serves all
	// concurrent callers.
	engine := ranking.NewEngine(st, st, rankingCfg)

	// Start debug server (pprof + prometheus, localhost only)
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(engine, appConfig)

	// Start API server in goroutine
	addr := ":" + strconv.Itoa(serverCfg.Port)
	go func() {
		log.Printf("🌐 Board API on http://localhost%s", addr)
		log.Printf("   - GET /api/players?limit=&offset=")
		log.Printf("   - GET /api/players/{id}")
		log.Printf("   - GET /api/stats")
		log.Printf("   - WS  /ws")

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	server.Stop()
	// Give in-flight page requests a moment to finish against the store
	time.Sleep(100 * time.Millisecond)
	if err := st.Close(); err != nil {
		log.Printf("⚠️ Store close: %v", err)
	}
	log.Println("👋 Goodbye!")
}
