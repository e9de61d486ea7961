package provisioning

import (
	"context"
	"log/slog"
	"sync"
)

// Pool runs provisioning jobs with bounded concurrency, apart from chat handling.
// Submitted jobs are never dropped: they wait for a free slot.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewPool(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:    make(chan struct{}, size),
		logger: logger,
	}
}

// Submit schedules job. The job context is detached from ctx cancellation so an
// approved payment is still provisioned after the triggering request returns.
func (p *Pool) Submit(ctx context.Context, name string, job func(ctx context.Context)) {
	jobCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic in provisioning job", "job", name, "panic", r)
			}
		}()

		job(jobCtx)
	}()
}

// Wait blocks until every submitted job finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
