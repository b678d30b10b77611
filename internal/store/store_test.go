package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

func TestBackends(t *testing.T) {
	dir := t.TempDir()

	sqlite, err := OpenSQLite(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer sqlite.Close()

	backends := map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   NewFileBackend(filepath.Join(dir, "files")),
		"sqlite": sqlite,
	}

	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Get("frames.radar"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing key, got %v", err)
			}

			if err := b.Put("frames.radar", []byte(`[{"time":1,"path":"/a"}]`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := b.Put("frames.radar", []byte(`[{"time":2,"path":"/b"}]`)); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}

			got, err := b.Get("frames.radar")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != `[{"time":2,"path":"/b"}]` {
				t.Fatalf("expected overwritten value, got %s", got)
			}
		})
	}
}

func TestFileBackendRemovesStaleTemp(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(dir)

	stale := filepath.Join(dir, "frames.radar.json.tmp")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get("frames.radar"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale temp file to be removed")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("redis", ""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAlertMemoryStoreRetention(t *testing.T) {
	loc := weather.Location{Name: "Denver", Lat: 39.74, Lon: -104.99, State: "CO"}
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	s := NewAlertMemoryStore(3, time.Hour)
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	if _, err := s.GetLatest(loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i := 0; i < 4; i++ {
		s.SaveAlerts(weather.AlertSet{
			Location:  loc,
			FetchedAt: base.Add(time.Duration(i) * 30 * time.Minute),
			Alerts:    []weather.Alert{{ID: string(rune('a' + i))}},
		})
	}

	latest, err := s.GetLatest(loc)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.Alerts[0].ID != "d" {
		t.Fatalf("expected newest poll, got %s", latest.Alerts[0].ID)
	}

	all, err := s.GetRange(loc, base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	// polls fetched before now-1h are dropped
	if len(all) != 2 {
		t.Fatalf("expected 2 retained polls, got %d", len(all))
	}

	if _, err := s.GetRange(loc, base.Add(5*time.Hour), base.Add(6*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty range, got %v", err)
	}
}

func TestAlertMemoryStoreKeepsNewestPastHorizon(t *testing.T) {
	loc := weather.Location{Lat: 1, Lon: 2}
	s := NewAlertMemoryStore(0, time.Minute)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	s.SaveAlerts(weather.AlertSet{Location: loc, FetchedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	if _, err := s.GetLatest(loc); err != nil {
		t.Fatalf("expected newest poll kept, got %v", err)
	}
}

func TestAlertMemoryStoreOrdersLateWrites(t *testing.T) {
	loc := weather.Location{Lat: 1, Lon: 2}
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s := NewAlertMemoryStore(0, 0)

	for _, m := range []int{30, 0, 60, 30} {
		s.SaveAlerts(weather.AlertSet{Location: loc, FetchedAt: base.Add(time.Duration(m) * time.Minute)})
	}

	latest, err := s.GetLatest(loc)
	if err != nil || !latest.FetchedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected the 60 minute poll as latest, got %v (%v)", latest.FetchedAt, err)
	}

	got, err := s.GetRange(loc, base.Add(30*time.Minute), base.Add(30*time.Minute))
	if err != nil || len(got) != 2 {
		t.Fatalf("expected both polls at the inclusive bound, got %d (%v)", len(got), err)
	}

	all, err := s.GetRange(loc, base, base.Add(time.Hour))
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 polls, got %d (%v)", len(all), err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].FetchedAt.Before(all[i-1].FetchedAt) {
			t.Fatalf("range not ordered at %d: %v", i, all)
		}
	}

	all[0].Scope = "mutated"
	again, _ := s.GetRange(loc, base, base)
	if again[0].Scope == "mutated" {
		t.Fatal("GetRange must return a copy")
	}
}
