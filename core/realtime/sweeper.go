package realtime

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"tenantdesk/core/utils"
)

// Sweeper periodically drops dead subscribers that never reached Disconnect.
type Sweeper struct {
	router *Router
	spec   string
	logger *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewSweeper(router *Router, spec string, logger *utils.Logger) *Sweeper {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Sweeper{router: router, spec: spec, logger: logger}
}

func (s *Sweeper) StartWithContext(ctx context.Context) error {
	if s == nil || s.router == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce() }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true
	go func() {
		<-ctx.Done()
		_ = s.StopWithContext(context.Background())
	}()
	return nil
}

func (s *Sweeper) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) RunOnce() int {
	removed := s.router.Sweep()
	if removed > 0 {
		s.logger.Printf("realtime: swept %d dead subscribers", removed)
	}
	return removed
}
