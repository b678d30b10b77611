package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/i474232898/weather-dashboard/internal/frames"
	"github.com/i474232898/weather-dashboard/internal/logger"
	"github.com/i474232898/weather-dashboard/internal/playback"
	"github.com/i474232898/weather-dashboard/internal/scheduler"
	"github.com/i474232898/weather-dashboard/internal/units"
)

var (
	// ErrPrimaryUnavailable is returned when the primary model fetch fails;
	// without it there is nothing to show.
	ErrPrimaryUnavailable = errors.New("primary forecast model unavailable")
	// ErrNoLocation is returned by accessors before any location was set.
	ErrNoLocation = errors.New("no location selected")
	// ErrUnknownLayer is returned for a layer other than radar or satellite.
	ErrUnknownLayer = errors.New("unknown frame layer")
)

// Frame layers served to the map.
const (
	LayerRadar     = "radar"
	LayerSatellite = "satellite"
)

const (
	radarCacheKey     = "frames.radar"
	satelliteCacheKey = "frames.satellite"
	defaultTileHost   = "https://tilecache.rainviewer.com"
)

// conversions normalize Open-Meteo's metric output to display units. They
// run on each model before fusion.
var conversions = map[Resolution]map[string]func(float64) float64{
	Hourly: {
		"snowfall":       units.CentimetersToInches,
		"precipitation":  units.MillimetersToInches,
		"temperature_2m": units.CelsiusToFahrenheit,
		"wind_speed_10m": units.KmhToMph,
	},
	Daily: {
		"snowfall_sum":       units.CentimetersToInches,
		"precipitation_sum":  units.MillimetersToInches,
		"temperature_2m_max": units.CelsiusToFahrenheit,
		"temperature_2m_min": units.CelsiusToFahrenheit,
	},
}

// Config holds the service's tunables.
type Config struct {
	PrimaryModel   string
	SecondaryModel string

	FramesInterval time.Duration
	AlertsInterval time.Duration
	FetchTimeout   time.Duration
	FrameMaxAge    time.Duration

	TileTemplate   string
	TileHost       string
	RadarTiles     frames.TileOptions
	SatelliteTiles frames.TileOptions

	PlaybackInterval time.Duration
	PlaybackGated    bool

	FusedQuantities map[Resolution][]string
}

// Sources are the upstream feeds. AirQuality may be nil.
type Sources struct {
	Frames     FrameSource
	Alerts     AlertSource
	Models     ModelSource
	AirQuality AirQualitySource
}

// FrameView is one layer's resolved timeline and the frame to show.
type FrameView struct {
	Layer  string                 `json:"layer"`
	Frames []frames.ResolvedFrame `json:"frames"`
	Index  int                    `json:"index"`
}

// Service owns the dashboard state: the frame caches and their poller, the
// alerts poller, the playback controller, the selected location and the
// latest fused forecast.
type Service struct {
	cfg    Config
	src    Sources
	alerts AlertStore

	radar     *frames.Cache
	satellite *frames.Cache
	player    *playback.Controller

	framesPoller *scheduler.Poller[Manifest]
	alertsPoller *scheduler.Poller[AlertSet]

	mu       sync.RWMutex
	host     string
	location *Location
	locGen   uint64
	forecast *Forecast

	wg  sync.WaitGroup
	now func() time.Time
}

// NewService wires the service. backend persists the frame windows and may
// be nil.
func NewService(cfg Config, src Sources, backend frames.Backend, alerts AlertStore) *Service {
	if cfg.FusedQuantities == nil {
		cfg.FusedQuantities = DefaultFusedQuantities
	}
	if cfg.TileHost == "" {
		cfg.TileHost = defaultTileHost
	}

	s := &Service{
		cfg:       cfg,
		src:       src,
		alerts:    alerts,
		radar:     frames.NewCache(backend, radarCacheKey, cfg.FrameMaxAge),
		satellite: frames.NewCache(backend, satelliteCacheKey, cfg.FrameMaxAge),
		host:      cfg.TileHost,
		now:       time.Now,
	}

	var opts []playback.Option
	if cfg.PlaybackGated {
		opts = append(opts, playback.Gated())
	}
	s.player = playback.New(cfg.PlaybackInterval, opts...)

	s.framesPoller = scheduler.New("frames", cfg.FramesInterval,
		s.fetchManifest, s.applyManifest, scheduler.WithTimeout(cfg.FetchTimeout))
	s.alertsPoller = scheduler.New("alerts", cfg.AlertsInterval,
		s.fetchAlerts, s.applyAlerts, scheduler.WithTimeout(cfg.FetchTimeout))
	return s
}

// Start restores the persisted frame windows and starts the pollers and the
// playback ticker.
func (s *Service) Start() error {
	radar := s.radar.Load()
	s.satellite.Load()
	s.player.SetWindow(radar.Len(), true)
	logger.Info("restored %d radar frames from cache", radar.Len())

	if err := s.framesPoller.Start(); err != nil {
		return fmt.Errorf("start frames poller: %w", err)
	}
	if err := s.alertsPoller.Start(); err != nil {
		s.framesPoller.Stop()
		return fmt.Errorf("start alerts poller: %w", err)
	}
	s.player.Start()
	return nil
}

// Stop halts every timer. No poll result is applied after Stop returns.
func (s *Service) Stop() {
	s.framesPoller.Stop()
	s.alertsPoller.Stop()
	s.player.Stop()
	s.wg.Wait()
}

func (s *Service) fetchManifest(ctx context.Context) (Manifest, error) {
	return s.src.Frames.FetchManifest(ctx)
}

func (s *Service) applyManifest(m Manifest) {
	if m.Host != "" {
		s.mu.Lock()
		s.host = m.Host
		s.mu.Unlock()
	}
	radar := s.radar.Apply(m.Radar)
	sat := s.satellite.Apply(m.Satellite)
	s.player.SetWindow(radar.Len(), false)
	logger.Debug("frames applied: radar=%d satellite=%d", radar.Len(), sat.Len())
}

func (s *Service) fetchAlerts(ctx context.Context) (AlertSet, error) {
	loc, ok := s.currentLocation()
	if !ok {
		return AlertSet{}, nil
	}
	return s.src.Alerts.FetchAlerts(ctx, loc)
}

func (s *Service) applyAlerts(set AlertSet) {
	loc, ok := s.currentLocation()
	if !ok || set.Location.Key() != loc.Key() {
		return
	}
	s.alerts.SaveAlerts(set)
	logger.Debug("alerts applied for %s: %d (%s)", loc.Key(), len(set.Alerts), set.Scope)
}

func (s *Service) currentLocation() (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return Location{}, false
	}
	return *s.location, true
}

// SetLocation selects a location, resets playback to the oldest frame and
// rebuilds the fused forecast. Only a primary model failure is returned; a
// failed secondary model degrades the fusion and a failed air quality fetch
// is omitted.
func (s *Service) SetLocation(ctx context.Context, loc Location) (Forecast, error) {
	s.mu.Lock()
	s.locGen++
	gen := s.locGen
	s.location = &loc
	s.mu.Unlock()

	s.player.SetWindow(s.radar.Window().Len(), true)

	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	var (
		wg                sync.WaitGroup
		primary           ModelForecast
		secondary         ModelForecast
		aq                AirQuality
		pErr, sErr, aqErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		primary, pErr = s.src.Models.FetchModel(ctx, s.cfg.PrimaryModel, loc)
	}()
	if s.cfg.SecondaryModel != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			secondary, sErr = s.src.Models.FetchModel(ctx, s.cfg.SecondaryModel, loc)
		}()
	}
	if s.src.AirQuality != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			aq, aqErr = s.src.AirQuality.FetchAirQuality(ctx, loc)
		}()
	}
	wg.Wait()

	if pErr != nil {
		logger.Error("primary model %s failed for %s: %v", s.cfg.PrimaryModel, loc.Key(), pErr)
		return Forecast{}, fmt.Errorf("%w: %v", ErrPrimaryUnavailable, pErr)
	}

	var sec *ModelForecast
	switch {
	case s.cfg.SecondaryModel == "":
	case sErr != nil:
		logger.Warn("secondary model %s failed for %s, using %s only: %v",
			s.cfg.SecondaryModel, loc.Key(), s.cfg.PrimaryModel, sErr)
	default:
		n := normalize(secondary)
		sec = &n
	}

	var air *AirQuality
	if s.src.AirQuality != nil {
		if aqErr != nil {
			logger.Warn("air quality failed for %s: %v", loc.Key(), aqErr)
		} else {
			air = &aq
		}
	}

	fc := s.buildForecast(loc, FuseForecasts(normalize(primary), sec, s.cfg.FusedQuantities), air)

	s.mu.Lock()
	if gen == s.locGen {
		s.forecast = &fc
	} else {
		logger.Debug("forecast for %s superseded by a newer location", loc.Key())
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.alertsPoller.Poll()
	}()
	return fc, nil
}

func normalize(m ModelForecast) ModelForecast {
	for q, fn := range conversions[Hourly] {
		m.Hourly = m.Hourly.Convert(q, fn)
	}
	for q, fn := range conversions[Daily] {
		m.Daily = m.Daily.Convert(q, fn)
	}
	return m
}

func (s *Service) buildForecast(loc Location, fused Fused, air *AirQuality) Forecast {
	fc := Forecast{
		Location:    loc,
		GeneratedAt: s.now().UTC(),
		Primary:     fused.Primary,
		Secondary:   fused.Secondary,
		Degraded:    fused.Degraded,
		Hourly:      fused.Hourly,
		Daily:       fused.Daily,
		AirQuality:  air,
	}

	code, ok := firstValue(fused.Daily, "weather_code")
	if !ok {
		code, _ = firstValue(fused.Hourly, "weather_code")
	}
	fc.Condition = units.CategoryForCode(int(code))
	fc.Label = fc.Condition.Label()

	if air != nil {
		aqi := newBand(air.USAQI, units.AQILevel)
		uv := newBand(air.UVIndex, units.UVLevel)
		fc.AQI, fc.UV = &aqi, &uv
	} else if v, ok := firstValue(fused.Daily, "uv_index_max"); ok {
		uv := newBand(v, units.UVLevel)
		fc.UV = &uv
	}
	return fc
}

func firstValue(s Series, q string) (float64, bool) {
	v := s.Get(q)
	if len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

// Location returns the selected location.
func (s *Service) Location() (Location, error) {
	loc, ok := s.currentLocation()
	if !ok {
		return Location{}, ErrNoLocation
	}
	return loc, nil
}

// Forecast returns the latest fused forecast.
func (s *Service) Forecast() (Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forecast == nil {
		return Forecast{}, ErrNoLocation
	}
	return *s.forecast, nil
}

// Alerts returns the mappable alerts of the latest poll for the selected
// location. Before the first poll lands the set is empty.
func (s *Service) Alerts() (AlertSet, error) {
	loc, ok := s.currentLocation()
	if !ok {
		return AlertSet{}, ErrNoLocation
	}
	set, err := s.alerts.GetLatest(loc)
	if err != nil {
		return AlertSet{Location: loc, Alerts: []Alert{}}, nil
	}
	set.Alerts = set.Mappable()
	return set, nil
}

// AlertHistory returns the alert polls for the selected location fetched in
// [from, to].
func (s *Service) AlertHistory(from, to time.Time) ([]AlertSet, error) {
	loc, ok := s.currentLocation()
	if !ok {
		return nil, ErrNoLocation
	}
	return s.alerts.GetRange(loc, from, to)
}

// Frames resolves a layer's window into tile URLs. Index is the playback
// position for radar; the satellite layer follows it by time.
func (s *Service) Frames(layer string) (FrameView, error) {
	s.mu.RLock()
	host := s.host
	s.mu.RUnlock()

	st := s.player.State()
	radar := s.radar.Window()

	var (
		w    frames.Window
		opts frames.TileOptions
	)
	switch layer {
	case "", LayerRadar:
		layer, w, opts = LayerRadar, radar, s.cfg.RadarTiles
	case LayerSatellite:
		w, opts = s.satellite.Window(), s.cfg.SatelliteTiles
	default:
		return FrameView{}, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}

	view := FrameView{
		Layer:  layer,
		Frames: frames.Resolve(w, s.cfg.TileTemplate, host, opts),
		Index:  -1,
	}
	switch {
	case w.Empty():
	case layer == LayerRadar:
		view.Index = min(st.Index, w.Len()-1)
	case radar.Empty():
		view.Index = w.Len() - 1
	default:
		view.Index = w.Nearest(radar.At(min(st.Index, radar.Len()-1)).Time)
	}
	return view, nil
}

// Playback returns the controller driving the radar timeline.
func (s *Service) Playback() *playback.Controller {
	return s.player
}

// Stats reports both pollers' counters.
func (s *Service) Stats() []scheduler.Stats {
	return []scheduler.Stats{s.framesPoller.Stats(), s.alertsPoller.Stats()}
}
