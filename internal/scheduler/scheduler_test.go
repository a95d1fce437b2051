package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/metrics"
	"github.com/psemmelhack/fm-agent/internal/repo"
	"github.com/psemmelhack/fm-agent/internal/services"
)

type claimSet struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (c *claimSet) ClaimTriggerRun(_ context.Context, trigger, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.keys == nil {
		c.keys = map[string]bool{}
	}
	k := trigger + "/" + key
	if c.keys[k] {
		return fmt.Errorf("claim: %w", repo.ErrAlreadyClaimed)
	}
	c.keys[k] = true
	return nil
}

type greeter struct {
	calls chan time.Time
	clk   clock.Clock
	err   error
}

func (g *greeter) Greet(context.Context) error {
	g.calls <- g.clk.Now()
	return g.err
}

type sweeper struct {
	calls chan time.Time
	clk   clock.Clock
	res   services.SweepResult
	err   error
}

func (s *sweeper) Sweep(context.Context) (services.SweepResult, error) {
	s.calls <- s.clk.Now()
	return s.res, s.err
}

type alerts struct {
	mu    sync.Mutex
	kinds []string
}

func (a *alerts) Alert(_ context.Context, kind, _ string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
}

func (a *alerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.kinds)
}

// stepTo advances clk in step increments, waiting for the loop to park on a
// timer before each step, until it reaches t.
func stepTo(clk *clock.FakeClock, t time.Time, step time.Duration) {
	for clk.Now().Before(t) {
		clk.WaitForTimers(1)
		d := t.Sub(clk.Now())
		if d > step {
			d = step
		}
		clk.Advance(d)
	}
}

func expectCall(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case at := <-ch:
		return at
	case <-time.After(2 * time.Second):
		t.Fatal("expected a call")
		return time.Time{}
	}
}

func expectNoCall(t *testing.T, ch <-chan time.Time) {
	t.Helper()
	select {
	case at := <-ch:
		t.Fatalf("unexpected call at %v", at)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunDaily_FiresAtConfiguredTime(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	clk := clock.Fake(time.Date(2026, 10, 14, 5, 57, 30, 0, la))
	g := &greeter{calls: make(chan time.Time, 4), clk: clk}
	s := New(Config{Location: la, GreetHour: 6}, clk, &claimSet{}, g, nil, &alerts{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.RunDaily(ctx); close(done) }()

	fire := time.Date(2026, 10, 14, 6, 0, 0, 0, la)
	stepTo(clk, fire.Add(-time.Second), time.Minute)
	expectNoCall(t, g.calls)

	stepTo(clk, fire, time.Minute)
	if at := expectCall(t, g.calls); !at.Equal(fire) {
		t.Fatalf("fired at %v; want %v", at, fire)
	}

	// The next wait targets tomorrow.
	clk.WaitForTimers(1)
	expectNoCall(t, g.calls)

	cancel()
	<-done
}

func TestRunDaily_SuspendPastFireTimeSkipsToTomorrow(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	clk := clock.Fake(time.Date(2026, 10, 14, 5, 59, 0, 0, la))
	g := &greeter{calls: make(chan time.Time, 4), clk: clk}
	s := New(Config{Location: la, GreetHour: 6}, clk, &claimSet{}, g, nil, &alerts{})
	skipped := testutil.ToFloat64(metrics.Greetings.WithLabelValues(metrics.OutcomeSkipped))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunDaily(ctx)

	clk.WaitForTimers(1)
	clk.Jump(time.Date(2026, 10, 14, 9, 30, 0, 0, la))
	clk.WaitForTimers(1)
	expectNoCall(t, g.calls)
	if got := testutil.ToFloat64(metrics.Greetings.WithLabelValues(metrics.OutcomeSkipped)); got != skipped+1 {
		t.Fatalf("skipped counter = %v; want %v", got, skipped+1)
	}

	stepTo(clk, time.Date(2026, 10, 15, 6, 0, 0, 0, la), time.Minute)
	expectCall(t, g.calls)
}

func TestRunDaily_ShortSuspendStillFires(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	clk := clock.Fake(time.Date(2026, 10, 14, 5, 30, 0, 0, la))
	g := &greeter{calls: make(chan time.Time, 4), clk: clk}
	s := New(Config{Location: la, GreetHour: 6}, clk, &claimSet{}, g, nil, &alerts{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunDaily(ctx)

	clk.WaitForTimers(1)
	clk.Jump(time.Date(2026, 10, 14, 6, 20, 0, 0, la))
	expectCall(t, g.calls)
}

func TestFireDaily_ClaimedOncePerDay(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC))
	g := &greeter{calls: make(chan time.Time, 4), clk: clk}
	claims := &claimSet{}
	a := &alerts{}
	s := New(Config{GreetHour: 6}, clk, claims, g, nil, a)
	ctx := context.Background()

	if err := s.FireDaily(ctx, clk.Now()); err != nil {
		t.Fatal(err)
	}
	// A second instance firing for the same day does nothing.
	if err := s.FireDaily(ctx, clk.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	expectCall(t, g.calls)
	expectNoCall(t, g.calls)

	if err := s.FireDaily(ctx, clk.Now().Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	expectCall(t, g.calls)
	if a.count() != 0 {
		t.Fatalf("alerts = %v", a.kinds)
	}
}

func TestFireDaily_FailuresAlert(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC))
	a := &alerts{}

	g := &greeter{calls: make(chan time.Time, 1), clk: clk, err: errors.New("llm down")}
	s := New(Config{}, clk, &claimSet{}, g, nil, a)
	if err := s.FireDaily(context.Background(), clk.Now()); err == nil {
		t.Fatal("want greet error")
	}

	s = New(Config{}, clk, &claimSet{err: errors.New("db locked")}, g, nil, a)
	if err := s.FireDaily(context.Background(), clk.Now()); err == nil {
		t.Fatal("want claim error")
	}
	if a.count() != 2 {
		t.Fatalf("alerts = %v", a.kinds)
	}
}

func TestRunSweeps_ImmediateThenOnBoundaries(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 10, 14, 10, 2, 0, 0, time.UTC))
	sw := &sweeper{calls: make(chan time.Time, 8), clk: clk}
	s := New(Config{SweepEvery: 5 * time.Minute}, clk, nil, nil, sw, &alerts{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.RunSweeps(ctx); close(done) }()

	expectCall(t, sw.calls)

	stepTo(clk, time.Date(2026, 10, 14, 10, 5, 0, 0, time.UTC), time.Minute)
	if at := expectCall(t, sw.calls); at.Minute() != 5 {
		t.Fatalf("second sweep at %v", at)
	}

	stepTo(clk, time.Date(2026, 10, 14, 10, 10, 0, 0, time.UTC), time.Minute)
	expectCall(t, sw.calls)

	cancel()
	<-done
}

func TestSweepOnce_MarkFailuresAlert(t *testing.T) {
	clk := clock.Fake(time.Now())
	a := &alerts{}
	sw := &sweeper{calls: make(chan time.Time, 1), clk: clk, res: services.SweepResult{Due: 2, Sent: 1, MarkFailed: []string{"c-1"}}}
	s := New(Config{}, clk, nil, nil, sw, a)
	partial := testutil.ToFloat64(metrics.Sweeps.WithLabelValues(metrics.OutcomePartial))

	s.SweepOnce(context.Background())

	if a.count() != 1 || a.kinds[0] != "mark_failed" {
		t.Fatalf("alerts = %v", a.kinds)
	}
	if got := testutil.ToFloat64(metrics.Sweeps.WithLabelValues(metrics.OutcomePartial)); got != partial+1 {
		t.Fatalf("partial sweeps = %v", got)
	}
}

func TestStartStop(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC))
	g := &greeter{calls: make(chan time.Time, 1), clk: clk}
	sw := &sweeper{calls: make(chan time.Time, 4), clk: clk}
	s := New(Config{GreetHour: 6}, clk, &claimSet{}, g, sw, &alerts{})

	s.Start(context.Background())
	s.Start(context.Background()) // no-op
	expectCall(t, sw.calls)
	clk.WaitForTimers(2)

	s.Stop()
	s.Stop()
}
