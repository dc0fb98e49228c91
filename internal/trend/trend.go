package trend

import (
	"math"
	"time"

	"github.com/dermalens/dermalens-backend/internal/metrics"
)

// Snapshot is the slice of a completed scan the trend engine needs: the
// per-metric scores, the derived overall score, and the capture time.
type Snapshot struct {
	Scores     metrics.Scores
	Overall    *float64
	CapturedAt time.Time
}

// Delta describes the change of one metric between two ordered scans.
// Lower severity is better, so a negative delta is an improvement.
type Delta struct {
	Metric        string
	PreviousScore float64
	CurrentScore  float64
	Delta         float64
	PercentChange float64
	Improvement   bool
	IsSignificant bool
	DaysBetween   int
}

// Direction classifies a metric's movement for the assistant context.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionWorsening Direction = "worsening"
	DirectionStable    Direction = "stable"
)

// classifyBand is the absolute delta below which a metric counts as stable.
const classifyBand = 5.0

// the synthetic metric name used for the aggregated score delta
const overallMetric = "overall"

// Compute produces one Delta per metric present in both snapshots, plus one
// for the overall score when both carry it. percent change is defined as 0
// when the previous score is 0: a zero baseline has no measurable relative
// change.
func Compute(prev, cur Snapshot, threshold float64) []Delta {
	days := DaysBetween(prev.CapturedAt, cur.CapturedAt)
	out := make([]Delta, 0, len(metrics.All)+1)
	for _, m := range metrics.All {
		p := prev.Scores.Get(m)
		c := cur.Scores.Get(m)
		if p == nil || c == nil {
			continue
		}
		out = append(out, computeOne(string(m), *p, *c, threshold, days))
	}
	if prev.Overall != nil && cur.Overall != nil {
		out = append(out, computeOne(overallMetric, *prev.Overall, *cur.Overall, threshold, days))
	}
	return out
}

func computeOne(name string, prev, cur, threshold float64, days int) Delta {
	delta := cur - prev
	pct := 0.0
	if prev != 0 {
		pct = delta / prev * 100
	}
	return Delta{
		Metric:        name,
		PreviousScore: prev,
		CurrentScore:  cur,
		Delta:         delta,
		PercentChange: pct,
		Improvement:   delta < 0,
		IsSignificant: math.Abs(pct) >= threshold,
		DaysBetween:   days,
	}
}

// DeclineDetected reports whether any primary metric worsened by at least
// threshold percent between the two snapshots. This is the single judgment
// consumed by the plan adjustment policy; individual metric regressions are
// still reported independently by Compute.
func DeclineDetected(prev, cur Snapshot, threshold float64) bool {
	for _, m := range metrics.Primary {
		p := prev.Scores.Get(m)
		c := cur.Scores.Get(m)
		if p == nil || c == nil || *p == 0 {
			continue
		}
		pct := (*c - *p) / *p * 100
		if pct >= threshold {
			return true
		}
	}
	return false
}

// Classify buckets each primary metric present in both snapshots into
// improving/worsening/stable using a flat ±5 point band.
func Classify(prev, cur Snapshot) map[string]Direction {
	out := map[string]Direction{}
	for _, m := range metrics.Primary {
		p := prev.Scores.Get(m)
		c := cur.Scores.Get(m)
		if p == nil || c == nil {
			continue
		}
		delta := *c - *p
		switch {
		case delta < -classifyBand:
			out[string(m)] = DirectionImproving
		case delta > classifyBand:
			out[string(m)] = DirectionWorsening
		default:
			out[string(m)] = DirectionStable
		}
	}
	return out
}

// DaysBetween returns the whole days elapsed from a to b.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
