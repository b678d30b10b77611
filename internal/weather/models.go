package weather

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/i474232898/weather-dashboard/internal/units"
)

// Location is the shared query key driving every fetch.
type Location struct {
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	State string  `json:"state"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Lat, l.Lon)
}

// Resolution is the time axis granularity of a series.
type Resolution string

const (
	Hourly Resolution = "hourly"
	Daily  Resolution = "daily"
)

// Series is a set of quantities index-aligned to one time axis.
type Series struct {
	Time   []string             `json:"time"`
	Values map[string][]float64 `json:"values"`
}

// Len returns the length of the time axis.
func (s Series) Len() int { return len(s.Time) }

// Get returns the values of quantity q, or nil.
func (s Series) Get(q string) []float64 {
	if s.Values == nil {
		return nil
	}
	return s.Values[q]
}

// Convert returns a copy of s with fn applied to every value of quantity q.
func (s Series) Convert(q string, fn func(float64) float64) Series {
	out := s.clone()
	src := s.Get(q)
	if src == nil {
		return out
	}
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = fn(v)
	}
	out.Values[q] = dst
	return out
}

func (s Series) clone() Series {
	out := Series{
		Time:   append([]string(nil), s.Time...),
		Values: make(map[string][]float64, len(s.Values)),
	}
	for q, v := range s.Values {
		out.Values[q] = append([]float64(nil), v...)
	}
	return out
}

// ModelForecast is one numerical weather model's output for a location.
type ModelForecast struct {
	Model  string `json:"model"`
	Hourly Series `json:"hourly"`
	Daily  Series `json:"daily"`
}

// Series returns the series for resolution r.
func (m ModelForecast) Series(r Resolution) Series {
	if r == Daily {
		return m.Daily
	}
	return m.Hourly
}

// Alert is a severe-weather alert feature.
type Alert struct {
	ID       string          `json:"id"`
	Event    string          `json:"event"`
	Severity string          `json:"severity"`
	Headline string          `json:"headline"`
	AreaDesc string          `json:"areaDesc"`
	Expires  time.Time       `json:"expires"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// Mappable reports whether the alert carries a geometry to draw.
func (a Alert) Mappable() bool {
	return len(a.Geometry) > 0 && string(a.Geometry) != "null"
}

// AlertSet is the result of one alerts poll.
type AlertSet struct {
	Location  Location  `json:"location"`
	FetchedAt time.Time `json:"fetchedAt"` // always UTC
	Scope     string    `json:"scope"`     // "point" or "area"
	Alerts    []Alert   `json:"alerts"`
}

// Mappable returns only the alerts that can be drawn on the map.
func (s AlertSet) Mappable() []Alert {
	out := make([]Alert, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		if a.Mappable() {
			out = append(out, a)
		}
	}
	return out
}

// AirQuality is the current air quality snapshot.
type AirQuality struct {
	USAQI           float64 `json:"usAqi"`
	PM25            float64 `json:"pm25"`
	PM10            float64 `json:"pm10"`
	Ozone           float64 `json:"ozone"`
	NitrogenDioxide float64 `json:"nitrogenDioxide"`
	CarbonMonoxide  float64 `json:"carbonMonoxide"`
	UVIndex         float64 `json:"uvIndex"`
}

// Band is a value with its derived classification.
type Band struct {
	Value float64     `json:"value"`
	Level units.Level `json:"level"`
	Label string      `json:"label"`
}

func newBand(v float64, classify func(float64) units.Level) Band {
	l := classify(v)
	return Band{Value: v, Level: l, Label: l.Label()}
}

// Forecast is the normalized, fused view served to the dashboard.
type Forecast struct {
	Location    Location  `json:"location"`
	GeneratedAt time.Time `json:"generatedAt"` // always UTC

	// Primary and Secondary name the fused models. Degraded is set when only
	// the primary model contributed.
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
	Degraded  bool   `json:"degraded"`

	Hourly Series `json:"hourly"`
	Daily  Series `json:"daily"`

	Condition  units.Category `json:"condition"`
	Label      string         `json:"conditionLabel"`
	AirQuality *AirQuality    `json:"airQuality,omitempty"`
	AQI        *Band          `json:"aqi,omitempty"`
	UV         *Band          `json:"uv,omitempty"`
}
