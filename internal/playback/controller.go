// Package playback drives frame-accurate animation over an assembled frame
// window: automatic looping advance, manual scrubbing and play/pause, with an
// optional gate that holds playback until an external animation (the map
// fly-to) reports completion.
//
// Phases:
//
//	idle    -> no frames loaded
//	ready   -> frames loaded, paused
//	playing -> auto-advancing every interval
//
// Scrubbing (SetIndex) is transient and always lands in ready.
package playback

import (
	"sync"
	"time"
)

// Phase is the controller's coarse state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseReady   Phase = "ready"
	PhasePlaying Phase = "playing"
)

// State is a snapshot of the controller.
type State struct {
	Phase       Phase         `json:"phase"`
	Index       int           `json:"index"`
	Length      int           `json:"length"`
	Playing     bool          `json:"playing"`
	Ready       bool          `json:"ready"`
	PendingPlay bool          `json:"pendingPlay"`
	Interval    time.Duration `json:"-"`
	IntervalMs  int64         `json:"intervalMs"`
}

// Option configures a Controller.
type Option func(*Controller)

// Gated makes the controller wait for SetReady(true) before entering playing.
func Gated() Option {
	return func(c *Controller) { c.gated = true }
}

// WithOnChange registers a listener called after every state change.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller maintains the current frame position over a window.
type Controller struct {
	mu       sync.Mutex
	interval time.Duration
	length   int
	index    int
	playing  bool
	gated    bool
	ready    bool
	pending  bool
	onChange func(State)

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a Controller ticking every interval while playing.
func New(interval time.Duration, opts ...Option) *Controller {
	c := &Controller{interval: interval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetWindow tells the controller the window now has length frames. The index
// is clamped into range; restart resets it to the oldest frame. Emptying the
// window while playing keeps the play queued for when frames return.
func (c *Controller) SetWindow(length int, restart bool) {
	c.update(func() {
		if length < 0 {
			length = 0
		}
		c.length = length
		switch {
		case length == 0:
			c.index = 0
			c.pending = c.pending || c.playing
			c.playing = false
		case restart:
			c.index = 0
		case c.index >= length:
			c.index = length - 1
		}
		c.resolvePending()
	})
}

// Advance moves to the next frame, wrapping to 0 after the last one. Before
// the gate opens the request is kept as a pending play instead.
func (c *Controller) Advance() {
	c.update(func() {
		if c.gated && !c.ready {
			c.pending = true
			return
		}
		c.advance()
	})
}

func (c *Controller) advance() {
	if c.length == 0 {
		return
	}
	c.index = (c.index + 1) % c.length
}

// SetIndex scrubs to frame i (clamped) and pauses.
func (c *Controller) SetIndex(i int) {
	c.update(func() {
		c.playing = false
		c.pending = false
		if c.length == 0 {
			c.index = 0
			return
		}
		c.index = clamp(i, 0, c.length-1)
	})
}

// Play starts auto-advance, or queues the intent until frames are loaded and
// the gate is open.
func (c *Controller) Play() {
	c.update(func() {
		c.pending = true
		c.resolvePending()
	})
}

// Pause stops auto-advance and drops any queued play.
func (c *Controller) Pause() {
	c.update(func() {
		c.playing = false
		c.pending = false
	})
}

// SetReady opens or closes the gate. Opening it honours a queued play.
func (c *Controller) SetReady(ready bool) {
	c.update(func() {
		c.ready = ready
		if !ready && c.gated {
			if c.playing {
				c.pending = true
			}
			c.playing = false
			return
		}
		c.resolvePending()
	})
}

func (c *Controller) resolvePending() {
	if !c.pending || c.length == 0 || (c.gated && !c.ready) {
		return
	}
	c.pending = false
	c.playing = true
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	phase := PhaseReady
	switch {
	case c.length == 0:
		phase = PhaseIdle
	case c.playing:
		phase = PhasePlaying
	}
	return State{
		Phase:       phase,
		Index:       c.index,
		Length:      c.length,
		Playing:     c.playing,
		Ready:       !c.gated || c.ready,
		PendingPlay: c.pending,
		Interval:    c.interval,
		IntervalMs:  c.interval.Milliseconds(),
	}
}

func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	st := c.snapshot()
	listener := c.onChange
	c.mu.Unlock()

	if listener != nil {
		listener(st)
	}
}

// Start launches the ticker. It is a no-op if already started.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.interval <= 0 {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(c.stop, c.done)
}

// Stop cancels the ticker and waits for it to exit; no tick fires after Stop
// returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
}

func (c *Controller) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick(stop)
		}
	}
}

func (c *Controller) tick(stop chan struct{}) {
	c.update(func() {
		select {
		case <-stop:
			return
		default:
		}
		if c.playing {
			c.advance()
		}
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
