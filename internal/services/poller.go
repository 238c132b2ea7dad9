package services

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"
)

// PollerService drives the periodic session checks: deviation-driven
// recalculation and traffic re-checks. Sessions enforce their own
// cooldowns and rate limits, so the poller just sweeps on a short
// interval.
type PollerService struct {
	navigation *NavigationService
	interval   time.Duration

	stopChan chan struct{}
	running  bool
}

// NewPollerService creates a poller for the navigation service.
func NewPollerService(navigation *NavigationService, interval time.Duration) *PollerService {
	return &PollerService{
		navigation: navigation,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (p *PollerService) Start(ctx context.Context) error {
	if p.running {
		return nil // Already running
	}
	p.running = true

	logging.Infow(ctx, "Starting session check poller", "interval", p.interval)
	go p.sweepLoop(ctx)
	return nil
}

// Stop gracefully stops the poller.
func (p *PollerService) Stop() {
	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
}

// IsRunning reports whether the poller is active.
func (p *PollerService) IsRunning() bool {
	return p.running
}

func (p *PollerService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Session poller stopping due to context cancellation")
			return
		case <-p.stopChan:
			logging.Infow(ctx, "Session poller stopping due to stop signal")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *PollerService) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	p.navigation.RunChecks(sweepCtx)
}
