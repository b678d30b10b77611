package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	results []int
}

func (r *recorder) add(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, v)
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.results...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPollerRunsImmediatelyAndRepeats(t *testing.T) {
	var calls atomic.Int32
	rec := &recorder{}

	p := New("test", 20*time.Millisecond, func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, rec.add)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	if err := p.Start(); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning on second Start, got %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) >= 3 })
}

func TestPollerSurvivesFailures(t *testing.T) {
	var calls atomic.Int32
	rec := &recorder{}

	p := New("flaky", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if n <= 2 {
			return 0, errors.New("upstream 503")
		}
		return int(n), nil
	}, rec.add)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return len(rec.snapshot()) >= 1 })

	st := p.Stats()
	if st.Failures < 2 {
		t.Fatalf("expected at least 2 recorded failures, got %d", st.Failures)
	}
	if rec.snapshot()[0] < 3 {
		t.Fatalf("failed polls must not deliver results, got %v", rec.snapshot())
	}
}

func TestPollerDiscardsStaleResult(t *testing.T) {
	rec := &recorder{}
	p := New("stale", time.Hour, func(ctx context.Context) (int, error) { return 0, nil }, rec.add)
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	defer p.cancel()

	p.issued = 2
	if !p.complete(p.session, 2, "newer", 20, nil) {
		t.Fatal("expected newer result to apply")
	}
	if p.complete(p.session, 1, "older", 10, nil) {
		t.Fatal("expected late older result to be discarded")
	}

	got := rec.snapshot()
	if len(got) != 1 || got[0] != 20 {
		t.Fatalf("expected only the newer result, got %v", got)
	}
}

func TestPollerDiscardsAfterStop(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	var once sync.Once

	p := New("slow", time.Hour, func(ctx context.Context) (int, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		// pretend the response arrived anyway
		return 42, nil
	}, rec.add)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-started
	p.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no results after stop, got %v", got)
	}
	if p.Poll() {
		t.Fatal("Poll on a stopped poller must not apply")
	}
}

func TestPollerDiscardsAcrossRestart(t *testing.T) {
	rec := &recorder{}
	hold := make(chan struct{}, 1)
	started := make(chan struct{})
	release := make(chan struct{})

	p := New("restart", time.Hour, func(ctx context.Context) (int, error) {
		select {
		case <-hold:
			close(started)
			// ignores ctx on purpose
			<-release
			return 111, nil
		default:
			return 0, errors.New("upstream 503")
		}
	}, rec.add)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return p.Stats().Failures >= 1 })

	hold <- struct{}{}
	applied := make(chan bool, 1)
	go func() { applied <- p.Poll() }()
	<-started

	p.Stop()
	if err := p.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer p.Stop()
	waitFor(t, func() bool { return p.Stats().Failures >= 2 })

	close(release)
	if <-applied {
		t.Fatal("a fetch issued before the restart must not apply")
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
	if st := p.Stats(); st.Applied != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPollerRejectsBadInterval(t *testing.T) {
	p := New("bad", 0, func(ctx context.Context) (int, error) { return 0, nil }, nil)
	if err := p.Start(); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestPollManual(t *testing.T) {
	rec := &recorder{}
	v := 0
	p := New("manual", time.Hour, func(ctx context.Context) (int, error) {
		v++
		return v, nil
	}, rec.add, WithTimeout(time.Second))

	if p.Poll() {
		t.Fatal("Poll before Start must not apply")
	}

	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	defer p.cancel()

	if !p.Poll() || !p.Poll() {
		t.Fatal("expected manual polls to apply")
	}
	if st := p.Stats(); st.Applied != 2 || st.Issued != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
