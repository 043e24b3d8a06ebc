// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/cors"

	"github.com/vikasswaminh/api-sec/shared/logger"
	"github.com/vikasswaminh/api-sec/signature"
)

// Run is the exported entry point for the gateway service. It wires the
// inspection pipeline from environment configuration and serves until
// SIGINT/SIGTERM.
func Run() {
	cfg := LoadConfig()
	slog := logger.New("gateway")

	// Tenant store and audit log share one Postgres pool. The database
	// owns the schema; the gateway only reads tenants and appends events.
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Rate-limit counters and the IP blocklist share one Redis client.
	limiter, err := NewRedisRateLimiter(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = limiter.Close() }()
	log.Printf("✅ Redis connected: %s", cfg.RedisURL)

	// Signature set: built-in table, or a YAML file loaded once at start.
	engineOpts := []signature.EngineOption{
		signature.WithMaxInputLength(int(cfg.MaxPayloadSize)),
	}
	if cfg.SignatureFile != "" {
		set, err := signature.LoadSetFromFile(cfg.SignatureFile)
		if err != nil {
			log.Fatalf("Failed to load signature file: %v", err)
		}
		engineOpts = append(engineOpts, signature.WithSet(set))
		log.Printf("✅ Loaded %d signatures from %s", set.Len(), cfg.SignatureFile)
	}
	engine := signature.NewEngine(engineOpts...)

	// ML fallback tier: enabled only when a backend is configured. With
	// no backend a clean pattern pass is conclusively safe.
	var classifier Classifier
	if cfg.MLBackendURL != "" {
		classifier = NewMLClient(cfg.MLBackendURL, cfg.MLTimeout)
		log.Printf("✅ ML fallback enabled: %s (timeout %s)", cfg.MLBackendURL, cfg.MLTimeout)
	} else {
		log.Println("ℹ️  ML fallback disabled - pattern engine is authoritative")
	}

	// Optional S3/R2 audit archive.
	var archiver *Archiver
	if cfg.ArchiveBucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archiver, err = NewArchiver(ctx, cfg, slog)
		cancel()
		if err != nil {
			log.Fatalf("Failed to initialize audit archive: %v", err)
		}
		defer archiver.Close()
		log.Printf("✅ Audit archive enabled: bucket %s", cfg.ArchiveBucket)
	}

	emitter := NewEventEmitter(db, archiver, slog, 1000, 2)

	gw := NewGateway(
		cfg,
		slog,
		NewPostgresTenantStore(db),
		limiter,
		NewRedisBlocklist(limiter.client, slog),
		engine,
		classifier,
		emitter,
		NewStatsStore(db),
	)
	gw.db = db
	gw.redis = limiter.client

	router := mux.NewRouter()
	gw.RegisterRoutes(router)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsMiddleware.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Inspection gateway starting on port %s (env: %s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := emitter.Shutdown(shutdownCtx); err != nil {
		log.Printf("Audit queue shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}

// openDatabase connects with a short retry loop; container DNS can lag a
// few seconds behind service startup.
func openDatabase(databaseURL string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", databaseURL)
		if err == nil {
			if err = db.Ping(); err == nil {
				log.Printf("✅ Connected to database (attempt %d/%d)", attempt, maxRetries)
				return db, nil
			}
		}
		if attempt < maxRetries {
			backoff := time.Duration(attempt*2) * time.Second
			log.Printf("⚠️  Database connection failed (attempt %d/%d): %v, retrying in %v", attempt, maxRetries, err, backoff)
			time.Sleep(backoff)
		}
	}
	return nil, err
}
