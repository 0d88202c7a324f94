package watch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "ailurus/pkg/logx"
)

// Watcher is one tracked source's detector.
type Watcher interface {
	Name() string
	Check(ctx context.Context) error
}

// Schedule controls the pacing of polling rounds.
//
// By default rounds sleep a random duration in [Min, Max] to avoid
// synchronized load on the upstream APIs. When Cron is non-nil it pins
// rounds to cron activations instead.
type Schedule struct {
	Min  time.Duration
	Max  time.Duration
	Cron cron.Schedule
}

// ParseSchedule builds a Schedule from config values. cronSpec may be
// empty.
func ParseSchedule(min, max time.Duration, cronSpec string) (Schedule, error) {
	s := Schedule{Min: min, Max: max}
	if cronSpec != "" {
		sched, err := cron.ParseStandard(cronSpec)
		if err != nil {
			return Schedule{}, err
		}
		s.Cron = sched
	}
	return s, nil
}

// Service runs polling rounds until its context is done. Each round runs
// every watcher concurrently; a watcher's failure is logged and isolated.
// Rounds never overlap: the next one starts only after all watchers of
// the current one returned, which also guarantees at most one in-flight
// detector per source.
type Service struct {
	log      logx.Logger
	watchers []Watcher

	mu    sync.Mutex
	sched Schedule

	rng *rand.Rand
}

func NewService(watchers []Watcher, sched Schedule, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		watchers: watchers,
		sched:    sched,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply swaps the schedule; takes effect from the next sleep.
func (s *Service) Apply(sched Schedule) {
	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()
}

// Run blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	for {
		s.round(ctx)

		wait := s.nextWait()
		s.log.Debug("round complete", logx.Duration("next_in", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// round polls every source once, concurrently.
func (s *Service) round(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	var wg sync.WaitGroup
	for _, w := range s.watchers {
		wg.Add(1)
		go func(w Watcher) {
			defer wg.Done()
			if err := w.Check(ctx); err != nil {
				s.log.Error("check failed", logx.String("source", w.Name()), logx.Err(err))
			}
		}(w)
	}
	wg.Wait()
}

func (s *Service) nextWait() time.Duration {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()

	if sched.Cron != nil {
		now := time.Now()
		return sched.Cron.Next(now).Sub(now)
	}

	min, max := sched.Min, sched.Max
	if min <= 0 {
		min = time.Minute
	}
	if max < min {
		max = min
	}
	if max == min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)+1))
}
