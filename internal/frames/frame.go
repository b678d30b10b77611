// Package frames assembles the playable radar and satellite timeline from a
// polling tile feed. Each poll returns only a partial, overlapping range of
// frames; Merge folds it into the previous window so the timeline grows
// across polls and survives restarts via a persisted copy.
package frames

import (
	"sort"
)

// Frame is one timestamped tile-imagery instant. Time (unix seconds) is the
// identity key.
type Frame struct {
	Time int64  `json:"time"`
	Path string `json:"path"`
}

// Window is an immutable, ascending, deduplicated sequence of frames.
type Window struct {
	frames []Frame
}

// NewWindow builds a window from arbitrary frames, deduplicating by time
// (later entries win) and sorting ascending.
func NewWindow(frames []Frame) Window {
	byTime := make(map[int64]Frame, len(frames))
	for _, f := range frames {
		byTime[f.Time] = f
	}
	return fromMap(byTime)
}

func fromMap(byTime map[int64]Frame) Window {
	if len(byTime) == 0 {
		return Window{}
	}
	out := make([]Frame, 0, len(byTime))
	for _, f := range byTime {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return Window{frames: out}
}

// Len returns the number of frames.
func (w Window) Len() int { return len(w.frames) }

// Empty reports whether there is no data yet.
func (w Window) Empty() bool { return len(w.frames) == 0 }

// At returns the frame at index i.
func (w Window) At(i int) Frame { return w.frames[i] }

// Frames returns a copy of the frames in ascending order.
func (w Window) Frames() []Frame {
	out := make([]Frame, len(w.frames))
	copy(out, w.frames)
	return out
}

// Latest returns the newest frame, if any.
func (w Window) Latest() (Frame, bool) {
	if len(w.frames) == 0 {
		return Frame{}, false
	}
	return w.frames[len(w.frames)-1], true
}

// Equal reports whether both windows hold the same frames.
func (w Window) Equal(o Window) bool {
	if len(w.frames) != len(o.frames) {
		return false
	}
	for i := range w.frames {
		if w.frames[i] != o.frames[i] {
			return false
		}
	}
	return true
}

// Merge folds fresh frames into previous. Previous frames older than
// now-maxAge are dropped; fresh frames overwrite previous ones sharing a
// time; the result is age bounded, deduplicated and ascending.
func Merge(previous Window, fresh []Frame, nowSeconds, maxAgeSeconds int64) Window {
	cutoff := nowSeconds - maxAgeSeconds
	byTime := make(map[int64]Frame, len(previous.frames)+len(fresh))

	for _, f := range previous.frames {
		if f.Time >= cutoff {
			byTime[f.Time] = f
		}
	}
	for _, f := range fresh {
		if f.Time >= cutoff {
			byTime[f.Time] = f
		}
	}

	return fromMap(byTime)
}

// Retain returns only the frames at or after cutoff.
func (w Window) Retain(cutoff int64) Window {
	i := sort.Search(len(w.frames), func(i int) bool { return w.frames[i].Time >= cutoff })
	if i == 0 {
		return w
	}
	return Window{frames: w.frames[i:]}
}

// Nearest returns the index of the frame closest in time to t, or -1 for an
// empty window. Ties go to the earlier frame.
func (w Window) Nearest(t int64) int {
	n := len(w.frames)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return w.frames[i].Time >= t })
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	case t-w.frames[i-1].Time <= w.frames[i].Time-t:
		return i - 1
	default:
		return i
	}
}
