// Package supervisor runs at most one crawl at a time in the background and
// reports on it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/housing-map-crawler/common"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

var (
	ErrAlreadyRunning = errors.New("a crawl is already running")
	ErrNotRunning     = errors.New("no crawl is running")
)

// State is the lifecycle of the supervisor's slot.
type State string

const (
	NotStarted State = "not-started"
	Running    State = "running"
	Stopped    State = "stopped"
)

// Job is one crawl run.
type Job interface {
	Run(ctx context.Context) error
	Interrupt()
}

// Factory prepares the job crawling city for crawl date ds.
type Factory func(city model.City, ds string) (Job, error)

// Status describes the current or most recent run.
type Status struct {
	State       State      `json:"state"`
	RunID       *uuid.UUID `json:"run_id,omitempty"`
	City        string     `json:"city,omitempty"`
	CityCode    string     `json:"city_code,omitempty"`
	DS          string     `json:"ds,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Interrupted bool       `json:"interrupted"`
	Err         string     `json:"error,omitempty"`
}

// Supervisor owns a single crawl slot.
type Supervisor struct {
	ctx     context.Context
	factory Factory
	now     func() time.Time

	mu     sync.Mutex
	status Status
	job    Job
	done   chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock overrides the time source used for crawl dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// New returns an idle supervisor. Runs are started under ctx; cancelling it
// interrupts the running crawl.
func New(ctx context.Context, factory Factory, opts ...Option) *Supervisor {
	s := &Supervisor{
		ctx:     ctx,
		factory: factory,
		now:     time.Now,
		status:  Status{State: NotStarted},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a crawl of city for today's crawl date.
func (s *Supervisor) Start(city model.City) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State == Running {
		return s.status, ErrAlreadyRunning
	}

	started := s.now()
	ds := common.CrawlDate(started)
	job, err := s.factory(city, ds)
	if err != nil {
		return s.status, fmt.Errorf("failed to prepare crawl of %s: %w", city.Name, err)
	}

	runID := uuid.New()
	s.status = Status{
		State:     Running,
		RunID:     &runID,
		City:      city.Name,
		CityCode:  city.Code,
		DS:        ds,
		StartedAt: &started,
	}
	s.job = job
	s.done = make(chan struct{})

	log.Info().
		Str("run_id", runID.String()).
		Str("city", city.Code).
		Str("ds", ds).
		Msg("Crawl run started")

	go s.run(job, s.done)
	return s.status, nil
}

func (s *Supervisor) run(job Job, done chan struct{}) {
	defer close(done)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("crawl panicked: %v", r)
			}
		}()
		err = job.Run(s.ctx)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	finished := s.now()
	s.status.State = Stopped
	s.status.FinishedAt = &finished
	if err != nil {
		s.status.Err = err.Error()
		log.Error().Err(err).Str("run_id", s.status.RunID.String()).Msg("Crawl run failed")
	} else {
		log.Info().
			Str("run_id", s.status.RunID.String()).
			Bool("interrupted", s.status.Interrupted).
			Msg("Crawl run ended")
	}
	s.job = nil
}

// Stop interrupts the running crawl. It returns once the request is
// recorded; the crawl ends at its next unit or batch boundary.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State != Running {
		return ErrNotRunning
	}
	s.status.Interrupted = true
	s.job.Interrupt()
	log.Info().Str("run_id", s.status.RunID.String()).Msg("Crawl stop requested")
	return nil
}

// Status returns a snapshot of the current or last run.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Wait blocks until the current run, if any, has ended or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
