package weather

import (
	"context"
	"time"

	"github.com/i474232898/weather-dashboard/internal/frames"
)

// Manifest is a tile-frame manifest flattened into per-layer frame lists.
type Manifest struct {
	Host      string
	Radar     []frames.Frame
	Satellite []frames.Frame
}

// FrameSource fetches the latest tile-frame manifest.
type FrameSource interface {
	FetchManifest(ctx context.Context) (Manifest, error)
}

// AlertSource fetches active alerts around a location, widening to the
// location's state when the point query has nothing to draw.
type AlertSource interface {
	FetchAlerts(ctx context.Context, loc Location) (AlertSet, error)
}

// ModelSource fetches one numerical model's forecast for a location.
type ModelSource interface {
	FetchModel(ctx context.Context, model string, loc Location) (ModelForecast, error)
}

// AirQualitySource fetches the current air quality snapshot.
type AirQualitySource interface {
	FetchAirQuality(ctx context.Context, loc Location) (AirQuality, error)
}

// AlertStore is the contract the in-memory alert history must satisfy.
type AlertStore interface {
	SaveAlerts(set AlertSet)
	GetLatest(loc Location) (AlertSet, error)
	GetRange(loc Location, from, to time.Time) ([]AlertSet, error)
}
