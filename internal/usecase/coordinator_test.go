package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	drepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/logger"
)

// fakeLease is an in-memory lease with real expiry semantics.
type fakeLease struct {
	mu       sync.Mutex
	value    string
	deadline time.Time
	gen      int64

	renewErr error
}

func (f *fakeLease) expiredLocked() bool {
	return f.value == "" || time.Now().After(f.deadline)
}

func (f *fakeLease) TryAcquire(ctx context.Context, holderID string, ttl time.Duration) (*drepo.Lease, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.expiredLocked() {
		return nil, false, nil
	}
	f.gen++
	f.value = fmt.Sprintf("%s|%d", holderID, f.gen)
	f.deadline = time.Now().Add(ttl)
	return &drepo.Lease{Key: "lease", HolderID: holderID, Generation: f.gen}, true, nil
}

func (f *fakeLease) Renew(ctx context.Context, lease *drepo.Lease, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renewErr != nil {
		return false, f.renewErr
	}
	want := fmt.Sprintf("%s|%d", lease.HolderID, lease.Generation)
	if f.expiredLocked() || f.value != want {
		return false, nil
	}
	f.deadline = time.Now().Add(ttl)
	return true, nil
}

func (f *fakeLease) Release(ctx context.Context, lease *drepo.Lease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := fmt.Sprintf("%s|%d", lease.HolderID, lease.Generation)
	if f.value == want {
		f.value = ""
	}
	return nil
}

func (f *fakeLease) holder() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expiredLocked() {
		return ""
	}
	return f.value
}

func shortCfg(id string) CoordinatorConfig {
	return CoordinatorConfig{
		HolderID:        id,
		TTL:             200 * time.Millisecond,
		AcquireInterval: 10 * time.Millisecond,
		RenewInterval:   20 * time.Millisecond,
	}
}

func TestCoordinatorAcquiresRunsAndReleases(t *testing.T) {
	fl := &fakeLease{}
	elected := make(chan *drepo.Lease, 1)
	demoted := make(chan struct{})

	c := NewCoordinator(fl, shortCfg("p1"), logger.Nop(), nil,
		func(ctx context.Context, lease *drepo.Lease) {
			elected <- lease
			<-ctx.Done()
			close(demoted)
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	select {
	case l := <-elected:
		if l.Generation != 1 {
			t.Fatalf("generation = %d", l.Generation)
		}
	case <-time.After(time.Second):
		t.Fatal("never elected")
	}

	cancel()
	select {
	case <-demoted:
	case <-time.After(time.Second):
		t.Fatal("callback ctx not cancelled on shutdown")
	}
	<-done

	if fl.holder() != "" {
		t.Fatal("lease not released on shutdown")
	}
}

func TestCoordinatorDemotesWhenRenewFails(t *testing.T) {
	fl := &fakeLease{}
	var terms int32
	demoted := make(chan struct{}, 4)

	c := NewCoordinator(fl, shortCfg("p1"), logger.Nop(), nil,
		func(ctx context.Context, lease *drepo.Lease) {
			atomic.AddInt32(&terms, 1)
			<-ctx.Done()
			demoted <- struct{}{}
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// Wait until led, then steal the lease from under it.
	waitFor(t, func() bool { return fl.holder() != "" })
	fl.mu.Lock()
	fl.value = "intruder|99"
	fl.deadline = time.Now().Add(time.Minute)
	fl.mu.Unlock()

	select {
	case <-demoted:
	case <-time.After(time.Second):
		t.Fatal("renewal failure did not cancel the leader context")
	}
}

func TestMutualExclusion(t *testing.T) {
	fl := &fakeLease{}
	var active, maxActive int32

	callback := func(ctx context.Context, lease *drepo.Lease) {
		n := atomic.AddInt32(&active, 1)
		for {
			if m := atomic.LoadInt32(&maxActive); n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		<-ctx.Done()
		atomic.AddInt32(&active, -1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		c := NewCoordinator(fl, shortCfg(fmt.Sprintf("p%d", i)), logger.Nop(), nil, callback)
		go c.Run(ctx)
	}

	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	if m := atomic.LoadInt32(&maxActive); m > 1 {
		t.Fatalf("observed %d concurrent leaders", m)
	}
}

func TestLivenessAfterLeaderStopsRenewing(t *testing.T) {
	fl := &fakeLease{}

	// A holder that grabbed the lease and died without releasing.
	if _, ok, _ := fl.TryAcquire(context.Background(), "dead", 100*time.Millisecond); !ok {
		t.Fatal("setup acquire failed")
	}

	elected := make(chan struct{})
	c := NewCoordinator(fl, shortCfg("p2"), logger.Nop(), nil,
		func(ctx context.Context, lease *drepo.Lease) {
			close(elected)
			<-ctx.Done()
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-elected:
	case <-time.After(time.Second):
		t.Fatal("new leader not elected after TTL expiry")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
