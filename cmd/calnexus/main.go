package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/pysugar/calendar-nexus/internal/api"
	"github.com/pysugar/calendar-nexus/internal/auth/credential"
	"github.com/pysugar/calendar-nexus/internal/auth/handshake"
	"github.com/pysugar/calendar-nexus/internal/auth/identity"
	"github.com/pysugar/calendar-nexus/internal/auth/provider"
	"github.com/pysugar/calendar-nexus/internal/calendar"
	"github.com/pysugar/calendar-nexus/internal/config"
	"github.com/pysugar/calendar-nexus/internal/db"
	"github.com/pysugar/calendar-nexus/internal/version"
)

func main() {
	configPath := os.Getenv("CALNEXUS_CONFIG")
	if configPath == "" {
		configPath = "calnexus.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db.StartSweepLoop(database)

	oauthConfig := provider.GetOAuthConfig(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.BaseURL+"/oauth/callback")
	oauthClient := provider.NewClient(oauthConfig)

	store := credential.NewStore(database)
	manager := credential.NewManager(store, oauthClient)

	issuer := identity.NewTokenIssuer(cfg.TokenSecret, time.Duration(cfg.TokenTTL))
	resolver := identity.NewResolver(database, issuer)

	stateCodec := handshake.NewStateCodec(cfg.TokenSecret, handshake.SessionTTL)
	flow := handshake.New(database, oauthClient, manager, oauthConfig, stateCodec)

	handlers := api.NewHandlers(resolver, issuer, manager, flow, calendar.NewClient(), cfg.BaseURL)
	router := api.NewRouter(handlers)

	log.Printf("🚀 calendar-nexus %s listening on %s (base URL: %s)", version.Version, cfg.ListenAddr, cfg.BaseURL)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
