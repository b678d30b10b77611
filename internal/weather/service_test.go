package weather

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-dashboard/internal/frames"
	"github.com/i474232898/weather-dashboard/internal/units"
)

type fakeFrames struct {
	mu       sync.Mutex
	manifest Manifest
	calls    int
}

func (f *fakeFrames) FetchManifest(ctx context.Context) (Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.manifest, nil
}

type fakeAlerts struct {
	set AlertSet
}

func (f *fakeAlerts) FetchAlerts(ctx context.Context, loc Location) (AlertSet, error) {
	set := f.set
	set.Location = loc
	return set, nil
}

type fakeModels struct {
	forecasts map[string]ModelForecast
	errs      map[string]error
}

func (f *fakeModels) FetchModel(ctx context.Context, model string, loc Location) (ModelForecast, error) {
	if err := f.errs[model]; err != nil {
		return ModelForecast{}, err
	}
	return f.forecasts[model], nil
}

type fakeAirQuality struct {
	aq  AirQuality
	err error
}

func (f *fakeAirQuality) FetchAirQuality(ctx context.Context, loc Location) (AirQuality, error) {
	return f.aq, f.err
}

type fakeAlertStore struct {
	mu   sync.Mutex
	sets map[string][]AlertSet
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{sets: map[string][]AlertSet{}}
}

func (s *fakeAlertStore) SaveAlerts(set AlertSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := set.Location.Key()
	s.sets[k] = append(s.sets[k], set)
}

func (s *fakeAlertStore) GetLatest(loc Location) (AlertSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets := s.sets[loc.Key()]
	if len(sets) == 0 {
		return AlertSet{}, errors.New("not found")
	}
	return sets[len(sets)-1], nil
}

func (s *fakeAlertStore) GetRange(loc Location, from, to time.Time) ([]AlertSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertSet(nil), s.sets[loc.Key()]...), nil
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (b *memBackend) Put(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return nil
}

var denver = Location{Name: "Denver", Lat: 39.7392, Lon: -104.9903, State: "CO"}

func testConfig() Config {
	return Config{
		PrimaryModel:     "ecmwf_ifs025",
		SecondaryModel:   "gfs_seamless",
		FramesInterval:   time.Hour,
		AlertsInterval:   time.Hour,
		FetchTimeout:     time.Second,
		FrameMaxAge:      2 * time.Hour,
		TileHost:         "https://tiles.example",
		RadarTiles:       frames.DefaultTileOptions,
		SatelliteTiles:   frames.TileOptions{Size: 256, Color: 0, Options: "0_0"},
		PlaybackInterval: time.Hour,
	}
}

func modelForecast(model string, snowCm []float64, tempC float64) ModelForecast {
	times := make([]string, len(snowCm))
	temps := make([]float64, len(snowCm))
	for i := range snowCm {
		times[i] = "t"
		temps[i] = tempC
	}
	return ModelForecast{
		Model: model,
		Hourly: Series{Time: times, Values: map[string][]float64{
			"snowfall":       snowCm,
			"temperature_2m": temps,
		}},
		Daily: Series{Time: []string{"d0"}, Values: map[string][]float64{
			"snowfall_sum": {25.4},
			"weather_code": {73},
			"uv_index_max": {3},
		}},
	}
}

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func newTestService(models *fakeModels, aq AirQualitySource) (*Service, *fakeAlertStore) {
	st := newFakeAlertStore()
	svc := NewService(testConfig(), Sources{
		Frames:     &fakeFrames{},
		Alerts:     &fakeAlerts{},
		Models:     models,
		AirQuality: aq,
	}, nil, st)
	return svc, st
}

func TestSetLocationNormalizesThenFuses(t *testing.T) {
	models := &fakeModels{forecasts: map[string]ModelForecast{
		"ecmwf_ifs025": modelForecast("ecmwf_ifs025", []float64{0, 12.7, 5.08}, 0),
		"gfs_seamless": modelForecast("gfs_seamless", []float64{7.62, 2.54, 10.16}, 10),
	}}
	svc, _ := newTestService(models, &fakeAirQuality{aq: AirQuality{USAQI: 51, UVIndex: 6}})

	fc, err := svc.SetLocation(context.Background(), denver)
	if err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}
	if fc.Degraded || fc.Primary != "ecmwf_ifs025" || fc.Secondary != "gfs_seamless" {
		t.Fatalf("unexpected fusion metadata %+v", fc)
	}
	if got := fc.Hourly.Get("snowfall"); !approxEqual(got, []float64{3, 5, 4}) {
		t.Fatalf("expected per-hour max in inches, got %v", got)
	}
	if got := fc.Hourly.Get("temperature_2m"); !approxEqual(got, []float64{32, 32, 32}) {
		t.Fatalf("non-fused quantity should be the primary's in °F, got %v", got)
	}
	if got := fc.Daily.Get("snowfall_sum"); !approxEqual(got, []float64{10}) {
		t.Fatalf("unexpected daily snowfall %v", got)
	}
	if fc.Condition != units.CategorySnow || fc.AQI == nil || fc.AQI.Level != units.AQIModerate || fc.UV.Level != units.UVHigh {
		t.Fatalf("unexpected derived values %+v", fc)
	}

	stored, err := svc.Forecast()
	if err != nil || stored.Location != denver {
		t.Fatalf("expected the forecast to be retained, got %+v (%v)", stored, err)
	}
	svc.Stop()
}

func TestSetLocationPrimaryFailureSurfaces(t *testing.T) {
	models := &fakeModels{
		forecasts: map[string]ModelForecast{"gfs_seamless": modelForecast("gfs_seamless", []float64{1}, 0)},
		errs:      map[string]error{"ecmwf_ifs025": errors.New("boom")},
	}
	svc, _ := newTestService(models, nil)

	_, err := svc.SetLocation(context.Background(), denver)
	if !errors.Is(err, ErrPrimaryUnavailable) {
		t.Fatalf("expected ErrPrimaryUnavailable, got %v", err)
	}
	if _, err := svc.Forecast(); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("no forecast should be stored, got %v", err)
	}
}

func TestSetLocationSecondaryFailureDegrades(t *testing.T) {
	models := &fakeModels{
		forecasts: map[string]ModelForecast{"ecmwf_ifs025": modelForecast("ecmwf_ifs025", []float64{2.54}, 0)},
		errs:      map[string]error{"gfs_seamless": errors.New("timeout")},
	}
	svc, _ := newTestService(models, &fakeAirQuality{err: errors.New("down")})

	fc, err := svc.SetLocation(context.Background(), denver)
	if err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}
	if !fc.Degraded || fc.Secondary != "" {
		t.Fatalf("expected degraded forecast, got %+v", fc)
	}
	if got := fc.Hourly.Get("snowfall"); !approxEqual(got, []float64{1}) {
		t.Fatalf("unexpected snowfall %v", got)
	}
	if fc.AirQuality != nil || fc.AQI != nil {
		t.Fatal("failed air quality should be omitted")
	}
	if fc.UV == nil || fc.UV.Level != units.UVModerate {
		t.Fatalf("expected UV from the daily max, got %+v", fc.UV)
	}
}

// slowModels holds every fetch for one location until release is closed.
type slowModels struct {
	*fakeModels
	slow    string
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (m *slowModels) FetchModel(ctx context.Context, model string, loc Location) (ModelForecast, error) {
	if loc.Key() == m.slow {
		m.once.Do(func() { close(m.started) })
		<-m.release
	}
	return m.fakeModels.FetchModel(ctx, model, loc)
}

func TestSetLocationSupersededForecastDropped(t *testing.T) {
	models := &slowModels{
		fakeModels: &fakeModels{forecasts: map[string]ModelForecast{
			"ecmwf_ifs025": modelForecast("ecmwf_ifs025", []float64{2.54}, 0),
			"gfs_seamless": modelForecast("gfs_seamless", []float64{5.08}, 0),
		}},
		slow:    denver.Key(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(testConfig(), Sources{
		Frames: &fakeFrames{},
		Alerts: &fakeAlerts{},
		Models: models,
	}, nil, newFakeAlertStore())

	type result struct {
		fc  Forecast
		err error
	}
	older := make(chan result, 1)
	go func() {
		fc, err := svc.SetLocation(context.Background(), denver)
		older <- result{fc, err}
	}()
	<-models.started

	boulder := Location{Name: "Boulder", Lat: 40.015, Lon: -105.2705, State: "CO"}
	if _, err := svc.SetLocation(context.Background(), boulder); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}

	close(models.release)
	res := <-older
	if res.err != nil || res.fc.Location != denver {
		t.Fatalf("older call should still return its own forecast, got %+v (%v)", res.fc, res.err)
	}

	stored, err := svc.Forecast()
	if err != nil || stored.Location != boulder {
		t.Fatalf("expected the newer location's forecast to be kept, got %+v (%v)", stored.Location, err)
	}
	if loc, _ := svc.Location(); loc != boulder {
		t.Fatalf("expected current location %+v, got %+v", boulder, loc)
	}
	svc.Stop()
}

func TestApplyManifestResolvesFrames(t *testing.T) {
	svc, _ := newTestService(&fakeModels{}, nil)
	now := time.Now().Unix()

	svc.applyManifest(Manifest{
		Host: "https://tilecache.rainviewer.com/",
		Radar: []frames.Frame{
			{Time: now - 1200, Path: "/v2/radar/a"},
			{Time: now - 600, Path: "/v2/radar/b"},
			{Time: now, Path: "/v2/radar/c"},
		},
		Satellite: []frames.Frame{{Time: now - 1100, Path: "/v2/satellite/x"}, {Time: now - 100, Path: "/v2/satellite/y"}},
	})

	if st := svc.Playback().State(); st.Length != 3 || st.Index != 0 {
		t.Fatalf("unexpected playback state %+v", st)
	}

	radar, err := svc.Frames(LayerRadar)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(radar.Frames) != 3 || radar.Index != 0 {
		t.Fatalf("unexpected radar view %+v", radar)
	}
	want := "https://tilecache.rainviewer.com/v2/radar/a/256/{z}/{x}/{y}/2/1_1.png"
	if radar.Frames[0].URL != want {
		t.Fatalf("URL = %q, want %q", radar.Frames[0].URL, want)
	}

	svc.Playback().SetIndex(2)
	sat, err := svc.Frames(LayerSatellite)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if sat.Index != 1 || !strings.HasSuffix(sat.Frames[1].URL, "/0/0_0.png") {
		t.Fatalf("satellite should follow radar by time, got %+v", sat)
	}

	if _, err := svc.Frames("lightning"); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("expected ErrUnknownLayer, got %v", err)
	}
}

func TestApplyManifestEmptyKeepsWindow(t *testing.T) {
	svc, _ := newTestService(&fakeModels{}, nil)
	now := time.Now().Unix()

	svc.applyManifest(Manifest{Radar: []frames.Frame{{Time: now, Path: "/a"}}})
	svc.applyManifest(Manifest{})

	view, _ := svc.Frames(LayerRadar)
	if len(view.Frames) != 1 {
		t.Fatalf("an empty poll must not clear the window, got %+v", view)
	}
}

func TestAlertsFollowSelectedLocation(t *testing.T) {
	svc, st := newTestService(&fakeModels{}, nil)
	if _, err := svc.Alerts(); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}

	svc.mu.Lock()
	loc := denver
	svc.location = &loc
	svc.mu.Unlock()

	boulder := Location{Lat: 40.01, Lon: -105.27}
	svc.applyAlerts(AlertSet{Location: boulder, Alerts: []Alert{{ID: "x"}}})
	if len(st.sets) != 0 {
		t.Fatal("alerts for another location must be ignored")
	}

	set, err := svc.Alerts()
	if err != nil || len(set.Alerts) != 0 {
		t.Fatalf("expected an empty set before the first poll, got %+v (%v)", set, err)
	}

	svc.applyAlerts(AlertSet{Location: denver, Scope: "point", Alerts: []Alert{
		{ID: "drawn", Geometry: json.RawMessage(`{"type":"Point","coordinates":[0,0]}`)},
		{ID: "zone-only"},
	}})
	set, err = svc.Alerts()
	if err != nil || len(set.Alerts) != 1 || set.Alerts[0].ID != "drawn" {
		t.Fatalf("expected only mappable alerts, got %+v (%v)", set, err)
	}
}

func TestStartRestoresCacheAndPolls(t *testing.T) {
	now := time.Now().Unix()
	cached, _ := json.Marshal([]frames.Frame{{Time: now - 300, Path: "/old"}, {Time: now - 10*3600, Path: "/expired"}})
	backend := &memBackend{data: map[string][]byte{radarCacheKey: cached}}
	src := &fakeFrames{manifest: Manifest{Radar: []frames.Frame{{Time: now, Path: "/new"}}}}

	svc := NewService(testConfig(), Sources{
		Frames: src,
		Alerts: &fakeAlerts{},
		Models: &fakeModels{},
	}, backend, newFakeAlertStore())

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Stats()[0].Applied == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frames poller never applied a result")
		}
		time.Sleep(5 * time.Millisecond)
	}

	view, _ := svc.Frames(LayerRadar)
	if len(view.Frames) != 2 {
		t.Fatalf("expected restored frame plus fresh frame, got %+v", view.Frames)
	}
	if st := svc.Playback().State(); st.Length != 2 {
		t.Fatalf("playback length = %d, want 2", st.Length)
	}

	var persisted []frames.Frame
	backend.mu.Lock()
	err := json.Unmarshal(backend.data[radarCacheKey], &persisted)
	backend.mu.Unlock()
	if err != nil || len(persisted) != 2 {
		t.Fatalf("expected persisted window of 2 frames, got %v (%v)", persisted, err)
	}
}
