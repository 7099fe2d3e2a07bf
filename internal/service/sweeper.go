package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
)

// maxSweepsPerTick bounds how many stalled campaigns one tick recovers.
const maxSweepsPerTick = 10

// StallSweeper is the part of Dispatcher the sweeper needs.
type StallSweeper interface {
	Sweep(ctx context.Context) (Outcome, error)
}

// Sweeper periodically restarts running campaigns whose continuation chain
// broke, e.g. after a crash between a chunk and its commit.
type Sweeper struct {
	dispatcher StallSweeper
	log        zerolog.Logger
	c          *cron.Cron

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSweeper(d StallSweeper, schedule string, log zerolog.Logger) (*Sweeper, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		dispatcher: d,
		log:        log,
		c:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:        ctx,
		cancel:     cancel,
	}
	if _, err := s.c.AddFunc(schedule, s.Tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.c.Start()
}

// Stop ends an in-progress tick after its current campaign and waits for it.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	<-s.c.Stop().Done()
}

// Tick recovers stalled campaigns until none is left or the per-tick bound is hit.
func (s *Sweeper) Tick() {
	for i := 0; i < maxSweepsPerTick; i++ {
		if s.ctx.Err() != nil {
			return
		}
		// A started chunk runs to completion; Stop only prevents the next one.
		outcome, err := s.dispatcher.Sweep(context.WithoutCancel(s.ctx))
		if err != nil && !appErrors.IsFatal(err) {
			s.log.Error().Err(err).Msg("sweep failed")
			return
		}
		if outcome.Kind == OutcomeIdle {
			return
		}
		s.log.Info().Str("outcome", string(outcome.Kind)).Msg("stalled campaign swept")
	}
}
