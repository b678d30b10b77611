package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

const (
	defaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	defaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
)

// Quantities requested per resolution. Open-Meteo reports snowfall in cm,
// precipitation in mm, wind in km/h and temperature in °C.
var (
	HourlyQuantities = []string{
		"temperature_2m",
		"snowfall",
		"precipitation",
		"precipitation_probability",
		"wind_speed_10m",
		"weather_code",
	}
	DailyQuantities = []string{
		"snowfall_sum",
		"precipitation_sum",
		"temperature_2m_max",
		"temperature_2m_min",
		"uv_index_max",
		"weather_code",
	}
	airQualityFields = []string{
		"us_aqi",
		"pm2_5",
		"pm10",
		"ozone",
		"nitrogen_dioxide",
		"carbon_monoxide",
		"uv_index",
	}
)

// OpenMeteoProvider implements weather.ModelSource and weather.AirQualitySource.
type OpenMeteoProvider struct {
	name          string
	forecastURL   string
	airQualityURL string
	forecastDays  int
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
	aqCircuit     *gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider creates a client for the Open-Meteo forecast and
// air-quality endpoints.
func NewOpenMeteoProvider(client *http.Client, forecastURL, airQualityURL string, forecastDays int) *OpenMeteoProvider {
	if forecastURL == "" {
		forecastURL = defaultForecastURL
	}
	if airQualityURL == "" {
		airQualityURL = defaultAirQualityURL
	}
	if forecastDays <= 0 {
		forecastDays = 7
	}
	return &OpenMeteoProvider{
		name:          "openmeteo",
		forecastURL:   forecastURL,
		airQualityURL: airQualityURL,
		forecastDays:  forecastDays,
		httpCfg:       HTTPClientConfig{Client: client, Backoff: DefaultBackoff},
		circuit:       newBreaker("openmeteo"),
		aqCircuit:     newBreaker("openmeteo-air-quality"),
	}
}

// Name identifies the provider in logs and breaker names.
func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// FetchModel fetches hourly and daily series for a single model.
func (p *OpenMeteoProvider) FetchModel(ctx context.Context, model string, loc weather.Location) (weather.ModelForecast, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
	values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
	values.Set("hourly", strings.Join(HourlyQuantities, ","))
	values.Set("daily", strings.Join(DailyQuantities, ","))
	values.Set("timezone", "auto")
	values.Set("forecast_days", fmt.Sprintf("%d", p.forecastDays))
	if model != "" {
		values.Set("models", model)
	}

	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
		Daily  map[string]json.RawMessage `json:"daily"`
	}
	u := fmt.Sprintf("%s?%s", p.forecastURL, values.Encode())
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, "application/json", &payload); err != nil {
		return weather.ModelForecast{}, fmt.Errorf("model %s: %w", model, err)
	}

	hourly, err := decodeSeries(payload.Hourly, HourlyQuantities)
	if err != nil {
		return weather.ModelForecast{}, fmt.Errorf("model %s hourly: %w", model, err)
	}
	daily, err := decodeSeries(payload.Daily, DailyQuantities)
	if err != nil {
		return weather.ModelForecast{}, fmt.Errorf("model %s daily: %w", model, err)
	}

	return weather.ModelForecast{Model: model, Hourly: hourly, Daily: daily}, nil
}

// decodeSeries turns an Open-Meteo resolution block into a Series. Null
// entries become 0 and missing quantities become a zero series, so consumers
// never deal with absent values.
func decodeSeries(block map[string]json.RawMessage, quantities []string) (weather.Series, error) {
	var s weather.Series
	if raw, ok := block["time"]; ok {
		if err := json.Unmarshal(raw, &s.Time); err != nil {
			return weather.Series{}, fmt.Errorf("time axis: %w", err)
		}
	}

	n := len(s.Time)
	s.Values = make(map[string][]float64, len(quantities))
	for _, q := range quantities {
		vals := make([]float64, n)
		if raw, ok := block[q]; ok {
			var ptrs []*float64
			if err := json.Unmarshal(raw, &ptrs); err != nil {
				return weather.Series{}, fmt.Errorf("%s: %w", q, err)
			}
			for i := 0; i < n && i < len(ptrs); i++ {
				if ptrs[i] != nil {
					vals[i] = *ptrs[i]
				}
			}
		}
		s.Values[q] = vals
	}
	return s, nil
}

// FetchAirQuality fetches the current air quality snapshot.
func (p *OpenMeteoProvider) FetchAirQuality(ctx context.Context, loc weather.Location) (weather.AirQuality, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
	values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
	values.Set("current", strings.Join(airQualityFields, ","))

	var payload struct {
		Current struct {
			USAQI           *float64 `json:"us_aqi"`
			PM25            *float64 `json:"pm2_5"`
			PM10            *float64 `json:"pm10"`
			Ozone           *float64 `json:"ozone"`
			NitrogenDioxide *float64 `json:"nitrogen_dioxide"`
			CarbonMonoxide  *float64 `json:"carbon_monoxide"`
			UVIndex         *float64 `json:"uv_index"`
		} `json:"current"`
	}
	u := fmt.Sprintf("%s?%s", p.airQualityURL, values.Encode())
	if err := getJSON(ctx, p.httpCfg, p.aqCircuit, u, "application/json", &payload); err != nil {
		return weather.AirQuality{}, err
	}

	c := payload.Current
	return weather.AirQuality{
		USAQI:           orZero(c.USAQI),
		PM25:            orZero(c.PM25),
		PM10:            orZero(c.PM10),
		Ozone:           orZero(c.Ozone),
		NitrogenDioxide: orZero(c.NitrogenDioxide),
		CarbonMonoxide:  orZero(c.CarbonMonoxide),
		UVIndex:         orZero(c.UVIndex),
	}, nil
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
