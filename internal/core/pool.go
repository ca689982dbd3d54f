package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/repository"
)

// runner claims the next runnable item from a queue table and executes
// one attempt; recording the outcome is the runner's job.
type runner interface {
	Name() string
	RunNext(ctx context.Context) error
}

// Pool drives a fixed set of workers over one or more runners. Workers
// poll for claimable work and sleep for the poll interval when every
// queue comes up empty. Shutdown is cooperative through the context.
type Pool struct {
	runners  []runner
	workers  int
	poll     time.Duration
	jobLimit time.Duration
	log      *slog.Logger
	wg       sync.WaitGroup
}

type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

func NewPool(cfg PoolConfig, logger *slog.Logger, runners ...runner) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		runners:  runners,
		workers:  cfg.Workers,
		poll:     cfg.PollInterval,
		jobLimit: cfg.JobTimeout,
		log:      logger,
	}
}

// Start launches the workers. It returns immediately; call Wait to block
// until every worker has drained after the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("worker pool starting", "workers", p.workers, "poll_interval", p.poll)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}
		ran := false
		for _, r := range p.runners {
			err := p.runOne(ctx, r)
			switch {
			case err == nil:
				ran = true
			case errors.Is(err, common.ErrNotFound):
				// queue empty
			case ctx.Err() != nil:
				return
			default:
				// attempt failed; the runner recorded the outcome
				ran = true
				log.Debug("attempt failed", "runner", r.Name(), "error", err)
			}
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.poll):
		}
	}
}

func (p *Pool) runOne(ctx context.Context, r runner) error {
	if p.jobLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobLimit)
		defer cancel()
	}
	return r.RunNext(ctx)
}

// JobRunner adapts the processor to the pool: claim one job, run it.
type JobRunner struct {
	jobs repository.JobRepository
	proc *Processor
}

func NewJobRunner(jobs repository.JobRepository, proc *Processor) *JobRunner {
	return &JobRunner{jobs: jobs, proc: proc}
}

func (r *JobRunner) Name() string { return "extraction" }

func (r *JobRunner) RunNext(ctx context.Context) error {
	job, err := r.jobs.ClaimNext(ctx)
	if err != nil {
		return err
	}
	return r.proc.Process(ctx, job)
}

var _ runner = (*JobRunner)(nil)
