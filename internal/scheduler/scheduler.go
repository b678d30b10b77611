// Package scheduler runs feed pollers: a fetch issued immediately and then on
// a fixed interval, whose results are applied in issue order. A response that
// lands after a newer one has been applied is discarded, and nothing is
// applied once the poller is stopped.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/i474232898/weather-dashboard/internal/logger"
)

// ErrRunning is returned by Start when the poller is already running.
var ErrRunning = errors.New("poller already running")

const defaultTimeout = 30 * time.Second

// FetchFunc fetches one result. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Option configures a Poller.
type Option func(*options)

type options struct {
	timeout time.Duration
	now     func() time.Time
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Stats describes a poller's progress.
type Stats struct {
	Name        string    `json:"name"`
	Interval    string    `json:"interval"`
	Running     bool      `json:"running"`
	Issued      uint64    `json:"issued"`
	Applied     uint64    `json:"applied"`
	Failures    int       `json:"failures"`
	LastSuccess time.Time `json:"lastSuccess,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// Poller periodically fetches a result and hands it to onResult.
type Poller[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	onResult func(T)
	opts     options

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	// session changes on every Start so a fetch issued before a restart
	// cannot apply into the next run.
	session uint64

	// issued and applied are generation counters. A result applies only if
	// its generation is newer than the last applied one.
	issued      uint64
	applied     uint64
	failures    int
	lastSuccess time.Time
	lastErr     error
}

// New creates a Poller. onResult is called with the poller's lock held and
// must not call back into the poller.
func New[T any](name string, interval time.Duration, fetch FetchFunc[T], onResult func(T), opts ...Option) *Poller[T] {
	o := options{timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		onResult: onResult,
		opts:     o,
	}
}

// Start runs the fetch immediately and then every interval.
func (p *Poller[T]) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrRunning
	}
	if p.interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(p.interval).StartImmediately().Do(func() { p.tick() }); err != nil {
		return err
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.scheduler = s
	p.running = true
	p.session++
	s.StartAsync()

	logger.Info("%s poller started: interval=%s", p.name, p.interval)
	return nil
}

// Stop cancels the timer and any in-flight fetch. After Stop returns no
// result is applied.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	s := p.scheduler
	p.mu.Unlock()

	s.Stop()
	logger.Info("%s poller stopped", p.name)
}

// Poll runs one fetch outside the timer, e.g. after the query key changed.
// It reports whether the result was applied.
func (p *Poller[T]) Poll() bool {
	return p.tick()
}

func (p *Poller[T]) tick() bool {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return false
	}
	p.issued++
	gen := p.issued
	session := p.session
	parent := p.ctx
	p.mu.Unlock()

	reqID := uuid.NewString()
	ctx, cancel := context.WithTimeout(parent, p.opts.timeout)
	defer cancel()

	logger.Debug("%s poll %d started: request=%s", p.name, gen, reqID)
	result, err := p.fetch(ctx)
	return p.complete(session, gen, reqID, result, err)
}

func (p *Poller[T]) complete(session, gen uint64, reqID string, result T, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || session != p.session {
		logger.Debug("%s poll %d discarded after stop: request=%s", p.name, gen, reqID)
		return false
	}
	if err != nil {
		p.failures++
		p.lastErr = err
		logger.Warn("%s poll %d failed, keeping previous result: request=%s err=%v", p.name, gen, reqID, err)
		return false
	}
	if gen <= p.applied {
		logger.Debug("%s poll %d superseded by %d: request=%s", p.name, gen, p.applied, reqID)
		return false
	}

	p.applied = gen
	p.lastSuccess = p.opts.now().UTC()
	p.lastErr = nil
	if p.onResult != nil {
		p.onResult(result)
	}
	return true
}

// Stats returns a snapshot of the poller's counters.
func (p *Poller[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Name:        p.name,
		Interval:    p.interval.String(),
		Running:     p.running,
		Issued:      p.issued,
		Applied:     p.applied,
		Failures:    p.failures,
		LastSuccess: p.lastSuccess,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}
