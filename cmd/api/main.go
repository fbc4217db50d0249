package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"penlight.org/internal/auth"
	"penlight.org/internal/config"
	"penlight.org/internal/httpapi"
	"penlight.org/internal/obs"
	"penlight.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("PENLIGHT_CONFIG"), "Path to YAML config")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ttl, err := cfg.TokenTTL()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// The key pair is ephemeral: a restart invalidates in-flight handshakes
	// but never issued tokens, which depend only on the signing secret.
	keys, err := auth.GenerateKeyPair()
	if err != nil {
		log.Fatalf("generate key pair: %v", err)
	}
	engine, err := auth.NewEngine(keys, cfg.Auth.SigningSecret, auth.WithTokenTTL(ttl))
	if err != nil {
		log.Fatalf("auth engine: %v", err)
	}

	// The resolver re-reads live account state per request, so the store
	// is mandatory here, unlike a readiness-only database dependency.
	if cfg.Postgres.DSN == "" {
		log.Fatal("config: postgres.dsn is required")
	}
	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	api := httpapi.New(engine, pg.NewAccountStore(db), httpapi.ReadyProbe{DB: db}, httpapi.Options{
		AppSecret:    cfg.Auth.AppSecret,
		CookieDomain: cfg.Auth.CookieDomain,
		RateBurst:    cfg.Rate.Burst,
		RatePerSec:   cfg.Rate.PerSecond,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting penlight-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
