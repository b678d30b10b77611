package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given key.
	ErrNotFound = errors.New("not found")
)

// alertLog is one location's alert polls ordered by FetchedAt.
type alertLog []weather.AlertSet

// from returns the index of the first poll fetched at or after t.
func (l alertLog) from(t time.Time) int {
	return sort.Search(len(l), func(i int) bool { return !l[i].FetchedAt.Before(t) })
}

// through returns the index just past the last poll fetched at or before t.
func (l alertLog) through(t time.Time) int {
	return sort.Search(len(l), func(i int) bool { return l[i].FetchedAt.After(t) })
}

// insert places set after every poll fetched at or before it, so a late
// write with an older timestamp keeps the log ordered.
func (l alertLog) insert(set weather.AlertSet) alertLog {
	i := l.through(set.FetchedAt)
	l = append(l, weather.AlertSet{})
	copy(l[i+1:], l[i:])
	l[i] = set
	return l
}

// AlertMemoryStore keeps recent alert polls per location in memory. It is
// safe for concurrent use.
type AlertMemoryStore struct {
	mu   sync.RWMutex
	logs map[string]alertLog // by Location.Key

	maxHistory int           // polls kept per location, <= 0 is unlimited
	maxAge     time.Duration // polls older than this are dropped, 0 disables
	now        func() time.Time
}

// NewAlertMemoryStore creates an AlertMemoryStore. If maxHistory is <= 0 the
// count is unlimited; if maxAge is 0 polls never expire.
func NewAlertMemoryStore(maxHistory int, maxAge time.Duration) *AlertMemoryStore {
	return &AlertMemoryStore{
		logs:       make(map[string]alertLog),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveAlerts records a poll for its location and enforces retention.
func (s *AlertMemoryStore) SaveAlerts(set weather.AlertSet) {
	key := set.Location.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[key] = s.retain(s.logs[key].insert(set))
}

// retain drops polls past the count and age limits. The newest poll always
// survives so GetLatest has an answer after a long outage.
func (s *AlertMemoryStore) retain(l alertLog) alertLog {
	if s.maxHistory > 0 && len(l) > s.maxHistory {
		l = l[len(l)-s.maxHistory:]
	}
	if s.maxAge > 0 {
		start := l.from(s.now().Add(-s.maxAge))
		if start > len(l)-1 {
			start = len(l) - 1
		}
		l = l[start:]
	}
	return l
}

// GetLatest returns the most recent poll for a location.
func (s *AlertMemoryStore) GetLatest(loc weather.Location) (weather.AlertSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.logs[loc.Key()]
	if len(l) == 0 {
		return weather.AlertSet{}, ErrNotFound
	}
	return l[len(l)-1], nil
}

// GetRange returns the polls for a location fetched between from and to,
// both inclusive, oldest first.
func (s *AlertMemoryStore) GetRange(loc weather.Location, from, to time.Time) ([]weather.AlertSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.logs[loc.Key()]
	lo, hi := l.from(from), l.through(to)
	if lo >= hi {
		return nil, ErrNotFound
	}
	return append([]weather.AlertSet(nil), l[lo:hi]...), nil
}
