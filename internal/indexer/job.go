package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// LockKey serialises indexer runs across processes.
const LockKey = "indexer:load"

// ErrAlreadyDistributed is returned when the auction no longer accepts an
// investor list.
var ErrAlreadyDistributed = errors.New("indexer: shares already distributed")

// ErrStreamBehind is returned when the stream holds fewer reveals than the
// auction reports. The run is retried once the relay catches up.
var ErrStreamBehind = errors.New("indexer: stream missing revealed bids")

// JobConfig controls a Job.
type JobConfig struct {
	LockTTL time.Duration
	// SettleDelay is how long after the reveal deadline the job waits so
	// the relay has mirrored the last reveals.
	SettleDelay time.Duration
	// RetryInterval is the pause after a failed run.
	RetryInterval time.Duration
}

// Result summarises one load.
type Result struct {
	Bids       int
	Violations []domain.OrderViolation
}

// Job collects, ranks and loads the investor list.
type Job struct {
	collector *Collector
	loader    Loader
	locks     domain.LockManager
	cfg       JobConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewJob creates a Job. locks may be nil when only one indexer runs.
func NewJob(collector *Collector, loader Loader, locks domain.LockManager, cfg JobConfig, logger *slog.Logger) *Job {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Second
	}
	return &Job{
		collector: collector,
		loader:    loader,
		locks:     locks,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "indexer")),
	}
}

// Run performs one collect, sort and load pass. The auction must be in the
// claim phase and not yet distributed.
func (j *Job) Run(ctx context.Context) (Result, error) {
	if j.locks != nil {
		unlock, err := j.locks.Acquire(ctx, LockKey, j.cfg.LockTTL)
		if err != nil {
			return Result{}, fmt.Errorf("indexer: acquire %s: %w", LockKey, err)
		}
		defer unlock()
	}

	st, err := j.loader.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	if st.Distributed {
		return Result{}, ErrAlreadyDistributed
	}
	if st.Phase != domain.PhaseClaim {
		return Result{}, fmt.Errorf("indexer: auction in %s phase: %w", st.Phase, domain.ErrPhaseViolation)
	}

	bids, err := j.collector.Collect(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(bids) != st.RevealedBids {
		return Result{}, fmt.Errorf("%w: collected %d, auction has %d", ErrStreamBehind, len(bids), st.RevealedBids)
	}
	ranked := Sort(bids)

	if err := j.loader.LoadInvestors(ctx, Columns(ranked)); err != nil {
		return Result{}, err
	}

	violations, err := j.loader.VerifyOrder(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Bids: len(ranked), Violations: violations}
	if len(violations) > 0 {
		j.logger.WarnContext(ctx, "loaded investor list fails order check",
			slog.Int("investors", res.Bids),
			slog.Int("violations", len(violations)),
		)
	} else {
		j.logger.InfoContext(ctx, "investor list loaded", slog.Int("investors", res.Bids))
	}
	return res, nil
}

// RunWhenReady waits for the claim phase plus the settle delay, then runs
// until one pass succeeds, the auction is distributed or ctx ends.
func (j *Job) RunWhenReady(ctx context.Context) error {
	for {
		st, err := j.loader.Status(ctx)
		if err != nil {
			j.logger.WarnContext(ctx, "status unavailable", slog.String("error", err.Error()))
			if err := sleep(ctx, j.cfg.RetryInterval); err != nil {
				return err
			}
			continue
		}
		if st.Distributed {
			j.logger.InfoContext(ctx, "shares already distributed, nothing to load")
			return nil
		}

		if wait := st.RevealEnds.Add(j.cfg.SettleDelay).Sub(j.now()); wait > 0 {
			j.logger.InfoContext(ctx, "waiting for reveal deadline",
				slog.Time("reveal_ends", st.RevealEnds),
				slog.Duration("wait", wait),
			)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		_, err = j.Run(ctx)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyDistributed):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		j.logger.WarnContext(ctx, "indexer run failed", slog.String("error", err.Error()))
		if err := sleep(ctx, j.cfg.RetryInterval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
