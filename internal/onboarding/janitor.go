package onboarding

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJanitorSchedule = "@every 1m"

// Purger drops expired records from a store. The in-memory identity session
// store implements it; Redis expires keys on its own.
type Purger interface {
	PurgeExpired(now time.Time) int
}

// Janitor evicts idle sessions on a cron schedule so their pollers stop.
type Janitor struct {
	cron     *cron.Cron
	svc      *Service
	purgers  []Purger
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

type JanitorOption func(*Janitor)

func WithSchedule(spec string) JanitorOption {
	return func(j *Janitor) {
		j.schedule = spec
	}
}

func WithPurger(p Purger) JanitorOption {
	return func(j *Janitor) {
		j.purgers = append(j.purgers, p)
	}
}

func WithJanitorLogger(logger *slog.Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

func WithClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) {
		j.now = now
	}
}

func NewJanitor(svc *Service, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		cron:     cron.New(),
		svc:      svc,
		schedule: defaultJanitorSchedule,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start registers the sweep and starts the scheduler.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs one sweep.
func (j *Janitor) RunOnce() {
	now := j.now()
	evicted := j.svc.EvictIdle(now)
	purged := 0
	for _, p := range j.purgers {
		purged += p.PurgeExpired(now)
	}
	if evicted > 0 || purged > 0 {
		j.logger.Info("onboarding janitor sweep",
			"evicted_sessions", evicted,
			"purged_records", purged,
		)
	}
}
