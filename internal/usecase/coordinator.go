package usecase

import (
	"context"
	"time"

	drepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/logger"
)

// CoordinatorConfig carries the lease timings. Renewal must be well inside
// the TTL or leadership flaps.
type CoordinatorConfig struct {
	HolderID        string
	TTL             time.Duration
	AcquireInterval time.Duration
	RenewInterval   time.Duration
}

// Coordinator runs the Follower/Leader state machine around a distributed
// lease. While leading it runs the elected callback under a context that is
// cancelled the moment a renewal fails.
type Coordinator struct {
	lease   drepo.LeaderLease
	cfg     CoordinatorConfig
	log     *logger.Logger
	metrics drepo.Metrics

	// onElected runs in its own goroutine for the duration of one
	// leadership term. It must return promptly once ctx is cancelled.
	onElected func(ctx context.Context, lease *drepo.Lease)
}

func NewCoordinator(lease drepo.LeaderLease, cfg CoordinatorConfig, log *logger.Logger, metrics drepo.Metrics, onElected func(ctx context.Context, lease *drepo.Lease)) *Coordinator {
	return &Coordinator{
		lease:     lease,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		onElected: onElected,
	}
}

// Run blocks until ctx is done, alternating between following and leading.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		lease, ok := c.follow(ctx)
		if !ok {
			return // ctx done
		}
		c.lead(ctx, lease)
		if ctx.Err() != nil {
			return
		}
	}
}

// follow polls for the lease until acquired or ctx is done.
func (c *Coordinator) follow(ctx context.Context) (*drepo.Lease, bool) {
	ticker := time.NewTicker(c.cfg.AcquireInterval)
	defer ticker.Stop()

	for {
		lease, got, err := c.lease.TryAcquire(ctx, c.cfg.HolderID, c.cfg.TTL)
		if err != nil {
			c.log.Warn("lease acquire failed", logger.Error(err))
			if c.metrics != nil {
				c.metrics.RecordError("lease_acquire")
			}
		} else if got {
			return lease, true
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
	}
}

// lead holds leadership: starts the callback and renews until renewal fails
// or ctx is done. Renewal failure of any kind demotes; an in-flight iteration
// is abandoned via context cancellation rather than completed.
func (c *Coordinator) lead(ctx context.Context, lease *drepo.Lease) {
	c.log.Info("leadership acquired",
		logger.String("holder", lease.HolderID),
		logger.Int64("generation", lease.Generation))
	if c.metrics != nil {
		c.metrics.SetLeader(true)
	}

	leaderCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.onElected(leaderCtx, lease)
	}()

	ticker := time.NewTicker(c.cfg.RenewInterval)

	demote := func(reason string) {
		c.log.Warn("leadership lost", logger.String("reason", reason),
			logger.Int64("generation", lease.Generation))
		cancel()
	}

renewLoop:
	for {
		select {
		case <-ctx.Done():
			cancel()
			// Shutdown, not demotion: give the lease back immediately.
			relCtx, relCancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = c.lease.Release(relCtx, lease)
			relCancel()
			break renewLoop
		case <-done:
			// Callback exited on its own; surrender leadership.
			relCtx, relCancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = c.lease.Release(relCtx, lease)
			relCancel()
			cancel()
			break renewLoop
		case <-ticker.C:
			ok, err := c.lease.Renew(ctx, lease, c.cfg.TTL)
			if err != nil {
				demote("renew error: " + err.Error())
				break renewLoop
			}
			if !ok {
				demote("lease taken over or expired")
				break renewLoop
			}
		}
	}

	ticker.Stop()
	<-done
	if c.metrics != nil {
		c.metrics.SetLeader(false)
	}
}
