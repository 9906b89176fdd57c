package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PollFunc performs one poll cycle: claim a record, process it, commit.
// It reports whether it found work; when it did not, the loop sleeps
// for the idle interval before polling again.
type PollFunc func(ctx context.Context) (bool, error)

// Pool runs N independent, long-lived polling loops over the same poll
// function. Loops share no state; all coordination happens through the
// record store's claim protocol. A failure or panic in one cycle is
// logged and followed by a fixed backoff; the loop itself never exits
// until the pool is stopped.
type Pool struct {
	name    string
	poll    PollFunc
	idle    time.Duration
	backoff time.Duration
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool around the given poll function.
func NewPool(name string, poll PollFunc, idle, backoff time.Duration) *Pool {
	return &Pool{
		name:    name,
		poll:    poll,
		idle:    idle,
		backoff: backoff,
		logger:  slog.With("component", name),
	}
}

// Start launches n polling loops. n = 0 disables the pool. Loops stop
// when ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context, n int) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("starting workers", "count", n)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Stop signals all loops to exit and waits for in-flight cycles to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("all workers stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	logger.Info("starting continuous poll")
	for {
		if ctx.Err() != nil {
			logger.Info("shutting down")
			return
		}

		worked, err := p.safePoll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			// Cancellation surfacing as an error; the next iteration exits.
		case err != nil:
			logger.Error("poll cycle failed, backing off", "err", err)
			sleep(ctx, p.backoff)
		case !worked:
			sleep(ctx, p.idle)
		}
	}
}

// safePoll runs one cycle, converting a panic into an error so a bad
// record can never kill the worker.
func (p *Pool) safePoll(ctx context.Context) (worked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
		}
	}()
	return p.poll(ctx)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
