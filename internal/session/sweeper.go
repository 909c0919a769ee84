package session

import (
	"context"
	"fmt"
	"time"

	"outreach-server/internal/observability"
)

// Sweeper periodically purges terminal sessions from the registry after the
// retention window, off the request-handling path.
type Sweeper struct {
	registry *Registry
	logger   *observability.Logger
	stopChan chan bool
	interval time.Duration
}

// NewSweeper creates a sweeper for the given registry.
func NewSweeper(registry *Registry, logger *observability.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		logger:   logger,
		stopChan: make(chan bool),
		interval: interval,
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info(ctx, "Starting session sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.registry.Sweep(); removed > 0 {
				s.logger.Info(ctx, fmt.Sprintf("Swept %d terminal sessions", removed))
			}
		case <-s.stopChan:
			s.logger.Info(ctx, "Stopping session sweeper")
			return
		case <-ctx.Done():
			s.logger.Info(ctx, "Context cancelled, stopping session sweeper")
			return
		}
	}
}

// Stop stops the background sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}
