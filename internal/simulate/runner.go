package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/liftmap/pkg/logger"
)

// Runner records synthetic sessions against a running service.
type Runner struct {
	cfg    Config
	client *Client
	log    logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates a runner. Zero config fields take their defaults.
func NewRunner(cfg Config, log logger.Logger) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		log:    log,
		now:    time.Now,
	}
}

// Run records cfg.Sessions sessions with cfg.Workers in parallel and verifies
// each report. Every failed session is reported in the joined error.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.stats = Stats{StartTime: r.now()}
	r.log.Info(ctx, "starting liftmap simulation",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("sessions", r.cfg.Sessions),
		logger.Int("stops", r.cfg.Stops),
		logger.Int("workers", r.cfg.Workers),
		logger.Float64("retransmit", r.cfg.Retransmit))

	if err := r.client.Health(ctx); err != nil {
		return r.finish(), fmt.Errorf("service health check failed: %w", err)
	}

	jobs := make(chan int)
	errs := make([]error, r.cfg.Sessions)
	var wg sync.WaitGroup
	for range r.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = r.session(ctx, i)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range r.cfg.Sessions {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	stats := r.finish()
	if err := errors.Join(errs...); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	r.log.Info(ctx, "simulation completed",
		logger.Int("verified", stats.SessionsVerified),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func (r *Runner) finish() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.EndTime = r.now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	return r.stats
}

func (r *Runner) record(fn func(s *Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// session records, finishes and verifies the i-th session.
func (r *Runner) session(ctx context.Context, i int) (err error) {
	defer func() {
		if err != nil {
			r.record(func(s *Stats) { s.SessionsFailed++ })
			err = fmt.Errorf("session %d: %w", i, err)
		}
	}()

	seed := r.cfg.Seed + uint64(i) //nolint:gosec // i is a small non-negative index
	ride := GenerateRide(seed, r.cfg.Stops, r.cfg.Rate, r.now().UnixMilli())

	sess, err := r.client.StartSession(ctx, r.cfg.ElevatorID, r.cfg.Technician)
	if err != nil {
		return err
	}
	r.record(func(s *Stats) { s.SessionsStarted++ })
	log := r.log.With(logger.String("session", sess.ID))
	log.Debug(ctx, "session started", logger.Int("readings", len(ride.Readings)))

	coin := rand.New(rand.NewPCG(seed, 1)) //nolint:gosec // retransmission sampling
	for _, b := range Batches(sess.ID, ride.Readings, r.cfg.BatchSize) {
		sends := 1
		if coin.Float64() < r.cfg.Retransmit {
			sends = 2
		}
		for range sends {
			result, retries, err := r.client.Submit(ctx, b)
			if err != nil {
				return fmt.Errorf("batch %s: %w", b.BatchID, err)
			}
			r.record(func(s *Stats) {
				s.BatchesRetried += retries
				if result == resultDuplicate {
					s.BatchesDuplicate++
					return
				}
				s.BatchesAccepted++
				s.Readings += len(b.Readings)
			})
		}
	}

	report, err := r.client.Finish(ctx, sess.ID)
	if err != nil {
		return err
	}
	if err := Verify(ride, report); err != nil {
		log.Warn(ctx, "report does not match replay", logger.Error(err))
		return err
	}
	r.record(func(s *Stats) { s.SessionsVerified++ })
	log.Debug(ctx, "session verified", logger.Int("floors", len(ride.Floors)))
	return nil
}
