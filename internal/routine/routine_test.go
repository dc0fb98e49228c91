package routine

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dermalens/dermalens-backend/internal/metrics"
)

func f(v float64) *float64 { return &v }

func findStep(steps []Step, productType string) *Step {
	for i := range steps {
		if steps[i].ProductType == productType {
			return &steps[i]
		}
	}
	return nil
}

func TestGenerateDrynessRoutine(t *testing.T) {
	r := Generate(Input{
		PrimaryConcern: ConcernDryness,
		Priority:       ConcernDryness,
		Scores:         metrics.Scores{Dryness: f(70)},
	})

	treatment := findStep(r.PM, "treatment")
	if treatment == nil {
		t.Fatalf("PM routine missing treatment step: %+v", r.PM)
	}
	if treatment.Ingredient != "hyaluronic acid" {
		t.Fatalf("active ingredient: want=hyaluronic acid got=%q", treatment.Ingredient)
	}
	if treatment.Frequency != "daily" {
		t.Fatalf("hydration active frequency: want=daily got=%q", treatment.Frequency)
	}
	last := r.AM[len(r.AM)-1]
	if last.ProductType != "sunscreen" {
		t.Fatalf("AM routine must end with sunscreen, got %q", last.ProductType)
	}
	// no acid-based active for a dryness plan
	if strings.Contains(treatment.Ingredient, "BHA") {
		t.Fatalf("dryness plan must not carry an acid-based active: %q", treatment.Ingredient)
	}
	if r.IrritationRisk != RiskLow {
		t.Fatalf("irritation risk: want=low got=%s", r.IrritationRisk)
	}
}

func TestGenerateTonerGating(t *testing.T) {
	acne := Generate(Input{PrimaryConcern: ConcernAcne, Scores: metrics.Scores{Acne: f(60)}})
	if findStep(acne.AM, "toner") == nil {
		t.Fatalf("acne AM routine should include toner")
	}
	if findStep(acne.PM, "toner") == nil {
		t.Fatalf("acne PM routine should include toner")
	}

	redness := Generate(Input{PrimaryConcern: ConcernRedness, Scores: metrics.Scores{Redness: f(60)}})
	if findStep(redness.AM, "toner") != nil {
		t.Fatalf("redness AM routine should not include toner")
	}
	if findStep(redness.PM, "toner") == nil {
		t.Fatalf("redness PM routine should include toner")
	}

	dry := Generate(Input{PrimaryConcern: ConcernDryness, Scores: metrics.Scores{Dryness: f(60)}})
	if findStep(dry.AM, "toner") != nil || findStep(dry.PM, "toner") != nil {
		t.Fatalf("dryness routines should not include toner")
	}
}

func TestGenerateNoActiveBelowThreshold(t *testing.T) {
	r := Generate(Input{
		PrimaryConcern: ConcernAcne,
		Priority:       ConcernAcne,
		Scores:         metrics.Scores{Acne: f(30), Redness: f(20)},
	})
	if step := findStep(r.PM, "treatment"); step != nil {
		t.Fatalf("no concern clears the threshold, yet got active %+v", step)
	}
	if r.ActiveConcern != "" {
		t.Fatalf("active concern: want empty got=%q", r.ActiveConcern)
	}
}

func TestGeneratePriorityFallsBackToHighestSeverity(t *testing.T) {
	// Declared priority (acne, 30) misses the threshold; oiliness (80) wins.
	r := Generate(Input{
		PrimaryConcern: ConcernAcne,
		Priority:       ConcernAcne,
		Scores:         metrics.Scores{Acne: f(30), Oiliness: f(80), Redness: f(60)},
	})
	if r.ActiveConcern != ConcernOiliness {
		t.Fatalf("active concern: want=oiliness got=%q", r.ActiveConcern)
	}
}

func TestGeneratePriorityWinsWhenQualified(t *testing.T) {
	r := Generate(Input{
		PrimaryConcern: ConcernOiliness,
		Priority:       ConcernRedness,
		Scores:         metrics.Scores{Redness: f(55), Oiliness: f(90)},
	})
	if r.ActiveConcern != ConcernRedness {
		t.Fatalf("active concern: want=redness got=%q", r.ActiveConcern)
	}
}

func TestGenerateHighIrritationDownshiftsAcid(t *testing.T) {
	r := Generate(Input{
		PrimaryConcern: ConcernAcne,
		Priority:       ConcernAcne,
		Scores:         metrics.Scores{Acne: f(80), Redness: f(65)},
		Sensitivity:    true,
	})
	if r.IrritationRisk != RiskHigh {
		t.Fatalf("irritation risk: want=high got=%s", r.IrritationRisk)
	}
	treatment := findStep(r.PM, "treatment")
	if treatment == nil {
		t.Fatalf("PM routine missing treatment step")
	}
	if treatment.Frequency != "1x/week" {
		t.Fatalf("acid active at high risk: want=1x/week got=%q", treatment.Frequency)
	}
}

func TestGenerateHighIrritationLeavesGentleActiveAlone(t *testing.T) {
	r := Generate(Input{
		PrimaryConcern: ConcernDryness,
		Priority:       ConcernDryness,
		Scores:         metrics.Scores{Dryness: f(75), Redness: f(65)},
		Sensitivity:    true,
	})
	treatment := findStep(r.PM, "treatment")
	if treatment == nil {
		t.Fatalf("PM routine missing treatment step")
	}
	if treatment.Frequency != "daily" {
		t.Fatalf("non-acid active must keep its schedule: got=%q", treatment.Frequency)
	}
}

func TestClassifyIrritationRisk(t *testing.T) {
	cases := []struct {
		name        string
		redness     float64
		dryness     float64
		sensitivity bool
		want        IrritationRisk
	}{
		{"default low", 30, 30, false, RiskLow},
		{"high redness alone", 65, 30, false, RiskMedium},
		{"sensitivity alone", 30, 30, true, RiskMedium},
		{"sensitivity plus redness", 65, 30, true, RiskHigh},
		{"sensitivity plus dryness", 30, 70, true, RiskHigh},
	}
	for _, tc := range cases {
		got := ClassifyIrritationRisk(metrics.Scores{Redness: f(tc.redness), Dryness: f(tc.dryness)}, tc.sensitivity)
		if got != tc.want {
			t.Fatalf("%s: want=%s got=%s", tc.name, tc.want, got)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	in := Input{
		PrimaryConcern: ConcernAcne,
		Priority:       ConcernAcne,
		Scores:         metrics.Scores{Acne: f(70), Redness: f(40), Oiliness: f(60)},
	}
	a := Generate(in)
	b := Generate(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("routine generation must be deterministic:\n%+v\n%+v", a, b)
	}
}

func TestStepNumbersAreSequential(t *testing.T) {
	r := Generate(Input{PrimaryConcern: ConcernAcne, Scores: metrics.Scores{Acne: f(70)}})
	for _, steps := range [][]Step{r.AM, r.PM} {
		for i, s := range steps {
			if s.StepNumber != i+1 {
				t.Fatalf("step numbering: want=%d got=%d (%+v)", i+1, s.StepNumber, steps)
			}
		}
	}
}

func TestHasConflict(t *testing.T) {
	if !HasConflict("retinoid", "strong_acid") {
		t.Fatalf("retinoid + strong_acid must conflict")
	}
	if !HasConflict("benzoyl_peroxide", "retinoid") {
		t.Fatalf("conflicts must be order-insensitive")
	}
	if !HasConflict("strong_acid", "strong_acid") {
		t.Fatalf("acid stacking must conflict")
	}
	if HasConflict("niacinamide", "retinoid") {
		t.Fatalf("niacinamide + retinoid must not conflict")
	}
}

func TestRecommendations(t *testing.T) {
	recs := Recommendations(ConcernAcne)
	if len(recs) == 0 {
		t.Fatalf("acne recommendations missing")
	}
	for _, r := range recs {
		if r.Ingredient == "Retinol" && r.Application != "PM" {
			t.Fatalf("retinol is PM-only, got %q", r.Application)
		}
	}
	if Recommendations(Concern("bogus")) != nil {
		t.Fatalf("unknown concern should return nil")
	}
}
