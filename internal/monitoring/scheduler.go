package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/nip-auth/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler periodically prunes audit events older than the retention window.
type Scheduler struct {
	eventSvc  services.EventServiceProvider
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewScheduler creates a scheduler that runs on the given cron spec
// (standard five-field syntax or descriptors such as "@daily").
func NewScheduler(eventSvc services.EventServiceProvider, spec string, retention time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		eventSvc:  eventSvc,
		retention: retention,
		cron:      cron.New(),
		now:       time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.prune); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	log.Info().Dur("retention", s.retention).Msg("Starting event pruning scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped event pruning scheduler")
}

// RunOnce deletes events older than the retention window.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	return s.eventSvc.PruneBefore(ctx, cutoff)
}

func (s *Scheduler) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune events")
		return
	}
	log.Info().Int64("deleted", n).Msg("Pruned old events")
}
