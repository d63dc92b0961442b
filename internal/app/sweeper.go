/**
 * @description
 * Cron-driven sweep that fails line items stuck in the resolving state. The
 * resolution call's own timeout normally transitions an item first; the sweep
 * is the backstop that guarantees no item sits in-flight forever if a callback
 * is lost.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the stuck-resolution sweep on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	stuckAge time.Duration
}

// NewSweeper creates a sweeper. schedule is a standard cron expression;
// stuckAge is how long an item may sit in resolving before it is failed.
func NewSweeper(service *Service, schedule string, stuckAge time.Duration) *Sweeper {
	return &Sweeper{
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		service:  service,
		schedule: schedule,
		stuckAge: stuckAge,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		log.Printf("level=error component=sweeper msg=\"failed to schedule resolution sweep\" schedule=%q err=%v", s.schedule, err)
		return
	}
	log.Printf("level=info component=sweeper msg=\"scheduled resolution sweep\" schedule=%q stuck_after=%s", s.schedule, s.stuckAge)
	s.cron.Start()
}

// Stop gracefully stops the scheduler.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) run() {
	if swept := s.service.Resolution.SweepStuck(s.stuckAge); swept > 0 {
		log.Printf("level=warn component=sweeper msg=\"failed stuck resolutions\" count=%d stuck_after=%s", swept, s.stuckAge)
	}
}
