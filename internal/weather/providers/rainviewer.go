package providers

import (
	"context"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-dashboard/internal/frames"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

const defaultRainViewerURL = "https://api.rainviewer.com/public/weather-maps.json"

// rainViewerManifest mirrors the weather-maps.json payload.
type rainViewerManifest struct {
	Version   string `json:"version"`
	Generated int64  `json:"generated"`
	Host      string `json:"host"`
	Radar     struct {
		Past    []frames.Frame `json:"past"`
		Nowcast []frames.Frame `json:"nowcast"`
	} `json:"radar"`
	Satellite *struct {
		Infrared []frames.Frame `json:"infrared"`
	} `json:"satellite"`
}

// RainViewerProvider implements weather.FrameSource for the RainViewer tile feed.
type RainViewerProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewRainViewerProvider creates a client for the RainViewer frame manifest.
func NewRainViewerProvider(client *http.Client, baseURL string) *RainViewerProvider {
	if baseURL == "" {
		baseURL = defaultRainViewerURL
	}
	return &RainViewerProvider{
		name:    "rainviewer",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff},
		circuit: newBreaker("rainviewer"),
	}
}

// Name identifies the provider in logs and breaker names.
func (p *RainViewerProvider) Name() string {
	return p.name
}

// FetchManifest returns radar (past then nowcast) and infrared satellite frames.
func (p *RainViewerProvider) FetchManifest(ctx context.Context) (weather.Manifest, error) {
	var payload rainViewerManifest
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL, "application/json", &payload); err != nil {
		return weather.Manifest{}, err
	}

	m := weather.Manifest{
		Host:  payload.Host,
		Radar: make([]frames.Frame, 0, len(payload.Radar.Past)+len(payload.Radar.Nowcast)),
	}
	m.Radar = append(m.Radar, payload.Radar.Past...)
	m.Radar = append(m.Radar, payload.Radar.Nowcast...)
	if payload.Satellite != nil {
		m.Satellite = payload.Satellite.Infrared
	}
	return m, nil
}
