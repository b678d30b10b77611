package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-dashboard/internal/common"
	"github.com/i474232898/weather-dashboard/internal/logger"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

const (
	defaultNWSURL       = "https://api.weather.gov/alerts/active"
	defaultNWSUserAgent = "weather-dashboard (github.com/i474232898/weather-dashboard)"
)

type nwsFeatureCollection struct {
	Features []struct {
		ID         string          `json:"id"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties struct {
			ID       string `json:"id"`
			Event    string `json:"event"`
			Severity string `json:"severity"`
			Headline string `json:"headline"`
			AreaDesc string `json:"areaDesc"`
			Expires  string `json:"expires"`
			Ends     string `json:"ends"`
		} `json:"properties"`
	} `json:"features"`
}

// NWSProvider implements weather.AlertSource for the National Weather Service.
type NWSProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewNWSProvider creates an active-alerts client for the NWS API. userAgent
// is required by api.weather.gov.
func NewNWSProvider(client *http.Client, baseURL, userAgent string) *NWSProvider {
	if baseURL == "" {
		baseURL = defaultNWSURL
	}
	if userAgent == "" {
		userAgent = defaultNWSUserAgent
	}
	return &NWSProvider{
		name:    "nws",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff, UserAgent: userAgent},
		circuit: newBreaker("nws"),
		now:     time.Now,
	}
}

// Name identifies the provider in logs and breaker names.
func (p *NWSProvider) Name() string {
	return p.name
}

// FetchAlerts queries alerts at the location's point. When nothing there has
// a geometry to draw it widens to the state before accepting the result.
func (p *NWSProvider) FetchAlerts(ctx context.Context, loc weather.Location) (weather.AlertSet, error) {
	point := url.Values{}
	point.Set("point", fmt.Sprintf("%.4f,%.4f", loc.Lat, loc.Lon))

	alerts, err := p.query(ctx, point)
	if err != nil {
		return weather.AlertSet{}, err
	}
	set := weather.AlertSet{
		Location:  loc,
		FetchedAt: p.now().UTC(),
		Scope:     "point",
		Alerts:    alerts,
	}
	if hasMappable(alerts) || loc.State == "" {
		return set, nil
	}

	area := url.Values{}
	area.Set("area", strings.ToUpper(loc.State))
	wide, err := p.query(ctx, area)
	if err != nil {
		logger.Warn("nws area fallback failed for %s: %v", loc.State, err)
		return set, nil
	}
	set.Scope = "area"
	set.Alerts = wide
	return set, nil
}

func (p *NWSProvider) query(ctx context.Context, values url.Values) ([]weather.Alert, error) {
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload nwsFeatureCollection
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, "application/geo+json", &payload); err != nil {
		return nil, err
	}

	now := p.now()
	alerts := make([]weather.Alert, 0, len(payload.Features))
	for _, f := range payload.Features {
		props := f.Properties

		expires := parseAlertTime(props.Expires)
		if expires.IsZero() {
			expires = parseAlertTime(props.Ends)
		}
		// Skip already-expired alerts
		if !expires.IsZero() && expires.Before(now) {
			continue
		}

		a := weather.Alert{
			ID:       common.FirstNonEmpty(props.ID, f.ID),
			Event:    props.Event,
			Severity: normalizeSeverity(props.Severity, props.Event),
			Headline: props.Headline,
			AreaDesc: props.AreaDesc,
			Expires:  expires,
		}
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			a.Geometry = f.Geometry
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func hasMappable(alerts []weather.Alert) bool {
	for _, a := range alerts {
		if a.Mappable() {
			return true
		}
	}
	return false
}

func parseAlertTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// normalizeSeverity fills in a missing or "Unknown" severity from the event
// name, which always carries Warning/Watch/Advisory for NWS products.
func normalizeSeverity(severity, event string) string {
	if severity != "" && !strings.EqualFold(severity, "unknown") {
		return severity
	}
	switch {
	case common.HasAny(event, "tornado warning", "extreme wind warning"):
		return "Extreme"
	case common.HasAny(event, "warning"):
		return "Severe"
	case common.HasAny(event, "watch", "advisory"):
		return "Moderate"
	default:
		return "Minor"
	}
}
