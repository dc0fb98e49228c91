package metrics

import "testing"

func f(v float64) *float64 { return &v }

func TestClampBoundsPresentValues(t *testing.T) {
	s := Clamp(Scores{
		Acne:     f(120),
		Redness:  f(-5),
		Oiliness: f(55.5),
	})
	if *s.Acne != 100 {
		t.Fatalf("acne: want=100 got=%v", *s.Acne)
	}
	if *s.Redness != 0 {
		t.Fatalf("redness: want=0 got=%v", *s.Redness)
	}
	if *s.Oiliness != 55.5 {
		t.Fatalf("oiliness: want=55.5 got=%v", *s.Oiliness)
	}
	if s.Dryness != nil || s.Texture != nil || s.PoreSize != nil || s.DarkSpots != nil {
		t.Fatalf("missing metrics should stay missing: %+v", s)
	}
}

func TestOverallAllMetricsPresent(t *testing.T) {
	s := Scores{
		Acne:      f(60),
		Redness:   f(60),
		Oiliness:  f(60),
		Dryness:   f(60),
		Texture:   f(60),
		PoreSize:  f(60),
		DarkSpots: f(60),
	}
	got, ok := Overall(s)
	if !ok {
		t.Fatalf("Overall: expected ok")
	}
	if got != 60 {
		t.Fatalf("overall: want=60 got=%v", got)
	}
}

func TestOverallRenormalizesMissingMetrics(t *testing.T) {
	// Only acne (0.25) and redness (0.20) present; denominator must shrink to
	// 0.45 instead of treating the rest as zeros.
	s := Scores{
		Acne:    f(80),
		Redness: f(35),
	}
	got, ok := Overall(s)
	if !ok {
		t.Fatalf("Overall: expected ok")
	}
	want := (80*0.25 + 35*0.20) / 0.45
	want = float64(int(want*100+0.5)) / 100
	if got != want {
		t.Fatalf("overall: want=%v got=%v", want, got)
	}
}

func TestOverallNoMetricsIsAnomaly(t *testing.T) {
	got, ok := Overall(Scores{})
	if ok {
		t.Fatalf("Overall: expected not ok for empty scores")
	}
	if got != 0 {
		t.Fatalf("overall: want=0 got=%v", got)
	}
}

func TestGetRoundtrip(t *testing.T) {
	s := Scores{Dryness: f(70)}
	for _, m := range All {
		v := s.Get(m)
		if m == MetricDryness {
			if v == nil || *v != 70 {
				t.Fatalf("dryness: want=70 got=%v", v)
			}
			continue
		}
		if v != nil {
			t.Fatalf("%s: want=nil got=%v", m, *v)
		}
	}
}
