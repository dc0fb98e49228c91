package trend

import (
	"testing"
	"time"

	"github.com/dermalens/dermalens-backend/internal/metrics"
)

func f(v float64) *float64 { return &v }

func snap(day int, s metrics.Scores) Snapshot {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return Snapshot{Scores: s, CapturedAt: base.AddDate(0, 0, day)}
}

func findDelta(t *testing.T, deltas []Delta, metric string) Delta {
	t.Helper()
	for _, d := range deltas {
		if d.Metric == metric {
			return d
		}
	}
	t.Fatalf("no delta for metric %q in %+v", metric, deltas)
	return Delta{}
}

func TestComputeWorseningDelta(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(50)})
	cur := snap(10, metrics.Scores{Acne: f(60)})

	deltas := Compute(prev, cur, 10)
	if len(deltas) != 1 {
		t.Fatalf("delta count: want=1 got=%d", len(deltas))
	}
	d := deltas[0]
	if d.Delta != 10 {
		t.Fatalf("delta: want=10 got=%v", d.Delta)
	}
	if d.PercentChange != 20 {
		t.Fatalf("percent change: want=20 got=%v", d.PercentChange)
	}
	if d.Improvement {
		t.Fatalf("improvement: higher severity must not count as improvement")
	}
	if !d.IsSignificant {
		t.Fatalf("significance: 20%% change must clear a 10%% threshold")
	}
	if d.DaysBetween != 10 {
		t.Fatalf("days between: want=10 got=%d", d.DaysBetween)
	}
}

func TestComputeImprovementDelta(t *testing.T) {
	prev := snap(0, metrics.Scores{Redness: f(80)})
	cur := snap(7, metrics.Scores{Redness: f(40)})

	d := findDelta(t, Compute(prev, cur, 10), "redness")
	if d.Delta != -40 {
		t.Fatalf("delta: want=-40 got=%v", d.Delta)
	}
	if !d.Improvement {
		t.Fatalf("improvement: negative delta must count as improvement")
	}
	if !d.IsSignificant {
		t.Fatalf("significance: -50%% must be significant")
	}
}

func TestComputeZeroPreviousScore(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(0)})
	cur := snap(7, metrics.Scores{Acne: f(30)})

	d := findDelta(t, Compute(prev, cur, 10), "acne")
	if d.PercentChange != 0 {
		t.Fatalf("percent change with zero baseline: want=0 got=%v", d.PercentChange)
	}
	if d.IsSignificant {
		t.Fatalf("significance: zero-baseline change must not be significant")
	}
	if d.Delta != 30 {
		t.Fatalf("delta is still absolute: want=30 got=%v", d.Delta)
	}
}

func TestComputeSkipsMetricsMissingOnEitherSide(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(50), Texture: f(40)})
	cur := snap(7, metrics.Scores{Acne: f(45)})

	deltas := Compute(prev, cur, 10)
	if len(deltas) != 1 {
		t.Fatalf("delta count: want=1 got=%d (%+v)", len(deltas), deltas)
	}
	if deltas[0].Metric != "acne" {
		t.Fatalf("metric: want=acne got=%s", deltas[0].Metric)
	}
}

func TestComputeIncludesOverall(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(50)})
	prev.Overall = f(50)
	cur := snap(7, metrics.Scores{Acne: f(55)})
	cur.Overall = f(55)

	deltas := Compute(prev, cur, 10)
	if len(deltas) != 2 {
		t.Fatalf("delta count: want=2 got=%d", len(deltas))
	}
	d := findDelta(t, deltas, "overall")
	if d.Delta != 5 {
		t.Fatalf("overall delta: want=5 got=%v", d.Delta)
	}
}

func TestDeclineDetected(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(60), Redness: f(50)})
	cur := snap(10, metrics.Scores{Acne: f(75), Redness: f(48)})

	if !DeclineDetected(prev, cur, 10) {
		t.Fatalf("decline: acne 60→75 is +25%%, must trip a 10%% threshold")
	}
}

func TestDeclineNotDetectedWhenImproving(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(60), Dryness: f(70)})
	cur := snap(10, metrics.Scores{Acne: f(40), Dryness: f(55)})

	if DeclineDetected(prev, cur, 10) {
		t.Fatalf("decline: improving metrics must not count as decline")
	}
}

func TestDeclineIgnoresNonPrimaryMetrics(t *testing.T) {
	prev := snap(0, metrics.Scores{DarkSpots: f(40)})
	cur := snap(10, metrics.Scores{DarkSpots: f(80)})

	if DeclineDetected(prev, cur, 10) {
		t.Fatalf("decline: dark_spots is not a primary metric")
	}
}

func TestClassifyBands(t *testing.T) {
	prev := snap(0, metrics.Scores{Acne: f(60), Redness: f(50), Oiliness: f(50), Dryness: f(50)})
	cur := snap(7, metrics.Scores{Acne: f(50), Redness: f(60), Oiliness: f(54), Dryness: f(46)})

	got := Classify(prev, cur)
	if got["acne"] != DirectionImproving {
		t.Fatalf("acne: want=improving got=%s", got["acne"])
	}
	if got["redness"] != DirectionWorsening {
		t.Fatalf("redness: want=worsening got=%s", got["redness"])
	}
	if got["oiliness"] != DirectionStable {
		t.Fatalf("oiliness: want=stable got=%s", got["oiliness"])
	}
	if got["dryness"] != DirectionStable {
		t.Fatalf("dryness: want=stable got=%s", got["dryness"])
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 10 {
		t.Fatalf("days between: want=10 got=%d", got)
	}
}
