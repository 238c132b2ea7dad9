// Package config defines the server configuration. Sections are loaded
// from prefab's config system (prefab.yaml plus PF__ environment
// variables) and validated before use.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saferoute/navigator/internal/lib/navigation"
	"github.com/saferoute/navigator/internal/lib/risk"
)

// Config is the complete server configuration.
type Config struct {
	Navigation NavigationConfig `yaml:"navigation"`
	Routing    RoutingConfig    `yaml:"routing"`
	RiskFeed   RiskFeedConfig   `yaml:"risk_feed"`
	Narration  NarrationConfig  `yaml:"narration"`
}

// NavigationConfig holds the guidance thresholds and polling intervals.
type NavigationConfig struct {
	DeviationThresholdMeters float64       `yaml:"deviation_threshold_meters" validate:"gt=0"`
	AdvanceThresholdMeters   float64       `yaml:"advance_threshold_meters" validate:"gt=0"`
	NarrateThresholdMeters   float64       `yaml:"narrate_threshold_meters" validate:"gtfield=AdvanceThresholdMeters"`
	RecalculationCooldown    time.Duration `yaml:"recalculation_cooldown" validate:"gt=0"`
	TrafficCheckInterval     time.Duration `yaml:"traffic_check_interval" validate:"gt=0"`
	PollInterval             time.Duration `yaml:"poll_interval" validate:"gt=0"`
	Risk                     RiskConfig    `yaml:"risk"`
}

// RiskConfig holds the proximity alert tuning.
type RiskConfig struct {
	MinLeadMeters        float64 `yaml:"min_lead_meters" validate:"gt=0"`
	HighSpeedFloorMeters float64 `yaml:"high_speed_floor_meters" validate:"gtefield=MinLeadMeters"`
	SpeedThresholdKmh    float64 `yaml:"speed_threshold_kmh" validate:"gt=0"`
	LeadSeconds          float64 `yaml:"lead_seconds" validate:"gt=0"`
	RearmMarginMeters    float64 `yaml:"rearm_margin_meters" validate:"gte=0"`
}

// RoutingConfig holds the route planning backend settings.
type RoutingConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	APIKey  string `yaml:"api_key" validate:"required"`
}

// RiskFeedConfig holds the crime hotspot feed settings.
type RiskFeedConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gt=0"`
	RadiusMeters    float64       `yaml:"radius_meters" validate:"gt=0"`
}

// NarrationConfig holds the OpenAI enhancement settings. An empty API
// key disables language-model narration; the templated fallback is used
// instead.
type NarrationConfig struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	Model        string `yaml:"model"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Navigation: NavigationConfig{
			DeviationThresholdMeters: 30,
			AdvanceThresholdMeters:   10,
			NarrateThresholdMeters:   30,
			RecalculationCooldown:    5 * time.Second,
			TrafficCheckInterval:     60 * time.Second,
			PollInterval:             5 * time.Second,
			Risk: RiskConfig{
				MinLeadMeters:        200,
				HighSpeedFloorMeters: 500,
				SpeedThresholdKmh:    40,
				LeadSeconds:          15,
				RearmMarginMeters:    50,
			},
		},
		Routing: RoutingConfig{
			BaseURL: "https://routing.saferoute.dev",
		},
		RiskFeed: RiskFeedConfig{
			RefreshInterval: 15 * time.Minute,
			RadiusMeters:    1000,
		},
		Narration: NarrationConfig{
			Model: "gpt-4o-mini",
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// NavigationSettings converts the YAML section to the session config.
func (c *Config) NavigationSettings() navigation.Config {
	return navigation.Config{
		DeviationThresholdMeters: c.Navigation.DeviationThresholdMeters,
		AdvanceThresholdMeters:   c.Navigation.AdvanceThresholdMeters,
		NarrateThresholdMeters:   c.Navigation.NarrateThresholdMeters,
		RecalculationCooldown:    c.Navigation.RecalculationCooldown,
		TrafficCheckInterval:     c.Navigation.TrafficCheckInterval,
		Monitor:                  c.MonitorSettings(),
	}
}

// MonitorSettings converts the risk section to the monitor config.
func (c *Config) MonitorSettings() risk.MonitorConfig {
	return risk.MonitorConfig{
		MinLeadMeters:        c.Navigation.Risk.MinLeadMeters,
		HighSpeedFloorMeters: c.Navigation.Risk.HighSpeedFloorMeters,
		SpeedThresholdKmh:    c.Navigation.Risk.SpeedThresholdKmh,
		LeadSeconds:          c.Navigation.Risk.LeadSeconds,
		RearmMarginMeters:    c.Navigation.Risk.RearmMarginMeters,
	}
}
