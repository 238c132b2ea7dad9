package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dpup/prefab"

	"github.com/saferoute/navigator/internal/cache"
	"github.com/saferoute/navigator/internal/clients/riskfeed"
	"github.com/saferoute/navigator/internal/clients/routing"
	"github.com/saferoute/navigator/internal/config"
	"github.com/saferoute/navigator/internal/lib/alerts"
	"github.com/saferoute/navigator/internal/services"
)

func main() {
	appConfig := loadConfig()

	cacheInstance := cache.New()
	cacheInstance.StartPeriodicCleanup(context.Background(), 10*time.Minute)

	routingClient := routing.NewClient(appConfig.Routing.APIKey, appConfig.Routing.BaseURL)
	feedParser := riskfeed.NewFeedParser(appConfig.RiskFeed.URL)

	// Language-model narration is optional; without a key the templated
	// fallback narrations are used.
	var enhancer alerts.NarrationEnhancer
	if appConfig.Narration.OpenAIAPIKey != "" {
		base := alerts.NewNarrationEnhancer(appConfig.Narration.OpenAIAPIKey, appConfig.Narration.Model)
		enhancer = alerts.NewCachedNarrationEnhancer(base, cache.NewNarrationCache(cacheInstance))
		log.Printf("Alert narration enabled with content-based caching (model: %s)", appConfig.Narration.Model)
	} else {
		log.Printf("No OpenAI API key configured, using templated alert narration")
	}

	navigationService := services.NewNavigationService(routingClient, feedParser, enhancer, cacheInstance, appConfig)

	log.Printf("SafeRoute navigation server starting")
	log.Printf("Routing backend: %s", appConfig.Routing.BaseURL)
	log.Printf("Risk feed: %s", appConfig.RiskFeed.URL)

	// Background sweep for deviation recalculation and traffic checks
	poller := services.NewPollerService(navigationService, appConfig.Navigation.PollInterval)
	if err := poller.Start(context.Background()); err != nil {
		log.Printf("Failed to start session poller: %v", err)
	}

	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/api/v1/navigation/sessions", navigationService.HTTPHandler()),
		prefab.WithHTTPHandlerFunc("/api/v1/navigation/sessions/", navigationService.HTTPHandler()),
	)

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system.
// Configuration comes from prefab.yaml and environment variables with
// the PF__ prefix, layered over the built-in defaults.
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("navigation", &appConfig.Navigation); err != nil {
		log.Fatalf("Failed to unmarshal navigation section: %v", err)
	}
	if err := prefab.Config.Unmarshal("routing", &appConfig.Routing); err != nil {
		log.Fatalf("Failed to unmarshal routing section: %v", err)
	}
	if err := prefab.Config.Unmarshal("risk_feed", &appConfig.RiskFeed); err != nil {
		log.Fatalf("Failed to unmarshal risk_feed section: %v", err)
	}
	if err := prefab.Config.Unmarshal("narration", &appConfig.Narration); err != nil {
		log.Fatalf("Failed to unmarshal narration section: %v", err)
	}

	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return appConfig
}

// homepageHandler serves a plain-text index at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, `SafeRoute Navigator

Turn-by-turn navigation engine with crime-risk aware guidance.

API:
  POST /api/v1/navigation/sessions                          start a session
  GET  /api/v1/navigation/sessions/{id}                     session snapshot
  POST /api/v1/navigation/sessions/{id}/position            apply a position sample
  POST /api/v1/navigation/sessions/{id}/end                 end the session
  POST /api/v1/navigation/sessions/{id}/narrated            acknowledge narration
  POST /api/v1/navigation/sessions/{id}/alert/dismiss       dismiss the risk alert
  POST /api/v1/navigation/sessions/{id}/recalculation/ack   acknowledge recalculation
  POST /api/v1/navigation/sessions/{id}/alternative/accept  install traffic alternative
  POST /api/v1/navigation/sessions/{id}/alternative/reject  discard traffic alternative
`)
}
