package weather

// DefaultFusedQuantities are the quantities reconciled across models when no
// explicit list is given. Snow accumulation takes the more severe of the two
// model guesses.
var DefaultFusedQuantities = map[Resolution][]string{
	Hourly: {"snowfall"},
	Daily:  {"snowfall_sum"},
}

// Fused is the reconciled output of two model forecasts.
type Fused struct {
	Primary   string
	Secondary string
	Degraded  bool
	Hourly    Series
	Daily     Series
}

// Fuse combines two index-aligned value slices by taking the maximum at every
// index both define. Where only the longer slice has a value it passes
// through unchanged.
func Fuse(primary, secondary []float64) []float64 {
	n := len(primary)
	if len(secondary) > n {
		n = len(secondary)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(primary):
			out[i] = secondary[i]
		case i >= len(secondary):
			out[i] = primary[i]
		default:
			out[i] = max(primary[i], secondary[i])
		}
	}
	return out
}

// FuseSeries reconciles two series on the same resolution. The listed
// quantities are fused with Fuse; every other quantity is taken from primary,
// or from secondary when primary lacks it. The time axis is the longer of
// the two.
func FuseSeries(primary, secondary Series, quantities ...string) Series {
	out := primary.clone()
	if secondary.Len() > primary.Len() {
		out.Time = append([]string(nil), secondary.Time...)
	}

	for q, v := range secondary.Values {
		if _, ok := out.Values[q]; !ok {
			out.Values[q] = append([]float64(nil), v...)
		}
	}
	for _, q := range quantities {
		p, s := primary.Get(q), secondary.Get(q)
		if p == nil && s == nil {
			continue
		}
		out.Values[q] = Fuse(p, s)
	}
	return out
}

// FuseForecasts fuses hourly and daily axes independently. A nil secondary
// degrades to primary-only values.
func FuseForecasts(primary ModelForecast, secondary *ModelForecast, quantities map[Resolution][]string) Fused {
	if quantities == nil {
		quantities = DefaultFusedQuantities
	}
	if secondary == nil {
		return Fused{
			Primary:  primary.Model,
			Degraded: true,
			Hourly:   primary.Hourly.clone(),
			Daily:    primary.Daily.clone(),
		}
	}
	return Fused{
		Primary:   primary.Model,
		Secondary: secondary.Model,
		Hourly:    FuseSeries(primary.Hourly, secondary.Hourly, quantities[Hourly]...),
		Daily:     FuseSeries(primary.Daily, secondary.Daily, quantities[Daily]...),
	}
}
