// Package statuspoll periodically samples the publication repository and
// broadcasts its state when it changes.
package statuspoll

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/sse"
)

// StatusSource reports the current repository state.
type StatusSource interface {
	Status(ctx context.Context) models.RepositoryState
}

// Publisher receives repository.status events.
type Publisher interface {
	Publish(evt sse.Event)
}

// Poller runs a gocron duration job that queries a StatusSource.
type Poller struct {
	scheduler gocron.Scheduler
	source    StatusSource
	publisher Publisher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu   sync.Mutex
	last *models.RepositoryState
}

// New creates a poller. interval must be positive.
func New(interval time.Duration, source StatusSource, publisher Publisher, logger *slog.Logger) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("statuspoll: interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("statuspoll: create scheduler: %w", err)
	}
	return &Poller{
		scheduler: s,
		source:    source,
		publisher: publisher,
		interval:  interval,
		timeout:   interval,
		logger:    logger,
	}, nil
}

// Run schedules the poll job, takes an immediate first sample and blocks
// until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() { p.Poll(ctx) }),
		gocron.WithName("repository-status"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("statuspoll: schedule: %w", err)
	}

	p.logger.Info("statuspoll: started", slog.Duration("interval", p.interval))
	p.scheduler.Start()
	<-ctx.Done()

	if err := p.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("statuspoll: shutdown: %w", err)
	}
	p.logger.Info("statuspoll: stopped")
	return nil
}

// Poll samples the repository once and publishes the state if it differs
// from the previous sample.
func (p *Poller) Poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	state := p.source.Status(ctx)

	p.mu.Lock()
	changed := p.last == nil || !equal(*p.last, state)
	p.last = &state
	p.mu.Unlock()

	if !changed {
		return
	}
	if !state.OK {
		p.logger.Warn("statuspoll: repository not ready", slog.String("error", state.Error))
	}
	p.publisher.Publish(sse.Event{Type: sse.EventRepositoryStatus, Data: state})
}

// Last returns the most recent sample, if any.
func (p *Poller) Last() (models.RepositoryState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return models.RepositoryState{}, false
	}
	return *p.last, true
}

func equal(a, b models.RepositoryState) bool {
	return a.OK == b.OK &&
		a.Branch == b.Branch &&
		a.HeadCommit == b.HeadCommit &&
		a.HeadSubject == b.HeadSubject &&
		a.HasConflicts == b.HasConflicts &&
		a.Error == b.Error &&
		slices.Equal(a.DirtyFiles, b.DirtyFiles) &&
		slices.Equal(a.ConflictFiles, b.ConflictFiles)
}
