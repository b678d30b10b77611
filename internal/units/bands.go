package units

// Level is a named classification band.
type Level string

const (
	AQIGood               Level = "good"
	AQIModerate           Level = "moderate"
	AQIUnhealthySensitive Level = "unhealthy for sensitive groups"
	AQIUnhealthy          Level = "unhealthy"
	AQIVeryUnhealthy      Level = "very unhealthy"
	AQIHazardous          Level = "hazardous"
	UVLow                 Level = "low"
	UVModerate            Level = "moderate"
	UVHigh                Level = "high"
	UVVeryHigh            Level = "very high"
	UVExtreme             Level = "extreme"
)

type band struct {
	upper float64
	level Level
}

// Upper bounds are inclusive.
var aqiBands = []band{
	{50, AQIGood},
	{100, AQIModerate},
	{150, AQIUnhealthySensitive},
	{200, AQIUnhealthy},
	{300, AQIVeryUnhealthy},
}

var uvBands = []band{
	{2, UVLow},
	{5, UVModerate},
	{7, UVHigh},
	{10, UVVeryHigh},
}

func classify(v float64, bands []band, top Level) Level {
	for _, b := range bands {
		if v <= b.upper {
			return b.level
		}
	}
	return top
}

// AQILevel classifies a US AQI value.
func AQILevel(aqi float64) Level {
	return classify(aqi, aqiBands, AQIHazardous)
}

// UVLevel classifies a UV index value.
func UVLevel(uv float64) Level {
	return classify(uv, uvBands, UVExtreme)
}

// Label returns the display form of the level.
func (l Level) Label() string {
	return Title(string(l))
}
