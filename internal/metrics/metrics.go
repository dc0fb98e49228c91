package metrics

import "math"

// Metric identifies one of the fixed severity dimensions reported by the
// vision analysis. Scores run 0-100 where higher means more severe.
type Metric string

const (
	MetricAcne      Metric = "acne"
	MetricRedness   Metric = "redness"
	MetricOiliness  Metric = "oiliness"
	MetricDryness   Metric = "dryness"
	MetricTexture   Metric = "texture"
	MetricPoreSize  Metric = "pore_size"
	MetricDarkSpots Metric = "dark_spots"
)

// All lists every metric in canonical order.
var All = []Metric{
	MetricAcne,
	MetricRedness,
	MetricOiliness,
	MetricDryness,
	MetricTexture,
	MetricPoreSize,
	MetricDarkSpots,
}

// Primary is the subset inspected by the plan adjustment policy.
var Primary = []Metric{
	MetricAcne,
	MetricRedness,
	MetricOiliness,
	MetricDryness,
}

// overallWeights drives the weighted aggregation in Overall. The denominator
// is re-normalized to the weights of present metrics, so a missing metric
// does not drag the average toward zero.
var overallWeights = map[Metric]float64{
	MetricAcne:      0.25,
	MetricRedness:   0.20,
	MetricOiliness:  0.15,
	MetricDryness:   0.15,
	MetricTexture:   0.15,
	MetricPoreSize:  0.05,
	MetricDarkSpots: 0.05,
}

// Scores is a fixed-size record of per-metric severity values. A nil field
// means the metric was not reported.
type Scores struct {
	Acne      *float64
	Redness   *float64
	Oiliness  *float64
	Dryness   *float64
	Texture   *float64
	PoreSize  *float64
	DarkSpots *float64
}

func (s Scores) Get(m Metric) *float64 {
	switch m {
	case MetricAcne:
		return s.Acne
	case MetricRedness:
		return s.Redness
	case MetricOiliness:
		return s.Oiliness
	case MetricDryness:
		return s.Dryness
	case MetricTexture:
		return s.Texture
	case MetricPoreSize:
		return s.PoreSize
	case MetricDarkSpots:
		return s.DarkSpots
	}
	return nil
}

func (s *Scores) set(m Metric, v *float64) {
	switch m {
	case MetricAcne:
		s.Acne = v
	case MetricRedness:
		s.Redness = v
	case MetricOiliness:
		s.Oiliness = v
	case MetricDryness:
		s.Dryness = v
	case MetricTexture:
		s.Texture = v
	case MetricPoreSize:
		s.PoreSize = v
	case MetricDarkSpots:
		s.DarkSpots = v
	}
}

// ClampValue bounds a single score into [0,100].
func ClampValue(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Clamp returns a copy of s with every present value bounded into [0,100].
// Missing values stay missing.
func Clamp(s Scores) Scores {
	var out Scores
	for _, m := range All {
		if v := s.Get(m); v != nil {
			c := ClampValue(*v)
			out.set(m, &c)
		}
	}
	return out
}

// Overall computes the weighted overall severity score across the metrics
// present in s. The second return is false when no metric is present, which
// callers should treat as a reportable anomaly rather than a zero score.
func Overall(s Scores) (float64, bool) {
	totalScore := 0.0
	totalWeight := 0.0
	for _, m := range All {
		v := s.Get(m)
		if v == nil {
			continue
		}
		w := overallWeights[m]
		totalScore += *v * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, false
	}
	return round2(totalScore / totalWeight), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
