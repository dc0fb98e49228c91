package routine

import (
	"github.com/dermalens/dermalens-backend/internal/metrics"
)

// Concern names a treatable skin concern. Concerns map 1:1 onto the primary
// metrics.
type Concern string

const (
	ConcernAcne     Concern = "acne"
	ConcernRedness  Concern = "redness"
	ConcernOiliness Concern = "oiliness"
	ConcernDryness  Concern = "dryness"
)

var Concerns = []Concern{ConcernAcne, ConcernRedness, ConcernOiliness, ConcernDryness}

func ValidConcern(c Concern) bool {
	for _, k := range Concerns {
		if k == c {
			return true
		}
	}
	return false
}

func (c Concern) metric() metrics.Metric {
	switch c {
	case ConcernAcne:
		return metrics.MetricAcne
	case ConcernRedness:
		return metrics.MetricRedness
	case ConcernOiliness:
		return metrics.MetricOiliness
	case ConcernDryness:
		return metrics.MetricDryness
	}
	return ""
}

type IrritationRisk string

const (
	RiskLow    IrritationRisk = "low"
	RiskMedium IrritationRisk = "medium"
	RiskHigh   IrritationRisk = "high"
)

// Step is one entry of an ordered AM or PM routine, persisted as JSON on the
// treatment plan.
type Step struct {
	StepNumber      int    `json:"step_number"`
	ProductType     string `json:"product_type"`
	Ingredient      string `json:"ingredient,omitempty"`
	Frequency       string `json:"frequency"`
	Instructions    string `json:"instructions"`
	WaitTimeMinutes int    `json:"wait_time_minutes"`
}

type Input struct {
	PrimaryConcern Concern
	// Priority is the user-declared concern; it wins over the score-derived
	// pick when it clears the severity threshold.
	Priority    Concern
	Scores      metrics.Scores
	SkinType    string
	Sensitivity bool
}

type Routine struct {
	AM             []Step
	PM             []Step
	IrritationRisk IrritationRisk
	ActiveConcern  Concern // empty when no concern cleared the threshold
}

// activeThreshold is the minimum severity a concern must reach to receive an
// active ingredient step.
const activeThreshold = 50.0

const sensitiveScoreGate = 60.0

// active describes the single treatment-grade ingredient a routine may carry.
type active struct {
	Ingredient string
	AcidBased  bool
	Frequency  string
	Why        string
}

var activesByConcern = map[Concern]active{
	ConcernAcne: {
		Ingredient: "salicylic acid (BHA)",
		AcidBased:  true,
		Frequency:  "2-3x/week",
		Why:        "Acne elevated; BHA helps unclog pores.",
	},
	ConcernOiliness: {
		Ingredient: "salicylic acid (BHA)",
		AcidBased:  true,
		Frequency:  "2-3x/week",
		Why:        "Oil production elevated; BHA keeps pores clear.",
	},
	ConcernRedness: {
		Ingredient: "niacinamide",
		AcidBased:  false,
		Frequency:  "daily",
		Why:        "Visible redness; niacinamide is gentle and supportive.",
	},
	ConcernDryness: {
		Ingredient: "hyaluronic acid",
		AcidBased:  false,
		Frequency:  "daily",
		Why:        "Dryness/barrier concern; hydrate first.",
	},
}

// conservativeFrequency is forced on acid-based actives when irritation risk
// is high.
const conservativeFrequency = "1x/week"

// ClassifyIrritationRisk escalates from low on a declared sensitivity flag or
// high redness, and to high only when sensitivity combines with high redness
// or dryness.
func ClassifyIrritationRisk(s metrics.Scores, sensitivity bool) IrritationRisk {
	redness := valueOrZero(s.Redness)
	dryness := valueOrZero(s.Dryness)
	risk := RiskLow
	if sensitivity || redness >= sensitiveScoreGate {
		risk = RiskMedium
	}
	if sensitivity && (redness >= sensitiveScoreGate || dryness >= sensitiveScoreGate) {
		risk = RiskHigh
	}
	return risk
}

// Generate builds the AM and PM step lists for the given input. The output is
// a pure function of the input: no randomness, no hidden state.
func Generate(in Input) Routine {
	risk := ClassifyIrritationRisk(in.Scores, in.Sensitivity)
	activeConcern, act := selectActive(in)

	if act != nil && risk == RiskHigh && act.AcidBased {
		downshifted := *act
		downshifted.Frequency = conservativeFrequency
		act = &downshifted
	}

	return Routine{
		AM:             buildAM(in),
		PM:             buildPM(in, act),
		IrritationRisk: risk,
		ActiveConcern:  activeConcern,
	}
}

// selectActive picks at most one active ingredient: the declared priority
// concern when it clears the threshold, otherwise the highest-severity
// concern that does.
func selectActive(in Input) (Concern, *active) {
	if in.Priority != "" {
		if score := in.Scores.Get(in.Priority.metric()); score != nil && *score >= activeThreshold {
			a := activesByConcern[in.Priority]
			return in.Priority, &a
		}
	}
	var best Concern
	bestScore := 0.0
	for _, c := range Concerns {
		score := in.Scores.Get(c.metric())
		if score == nil || *score < activeThreshold {
			continue
		}
		if best == "" || *score > bestScore {
			best = c
			bestScore = *score
		}
	}
	if best == "" {
		return "", nil
	}
	a := activesByConcern[best]
	return best, &a
}

func buildAM(in Input) []Step {
	steps := []Step{{
		ProductType:  "cleanser",
		Frequency:    "daily",
		Instructions: cleanserInstructions(in.PrimaryConcern),
	}}
	if in.PrimaryConcern == ConcernAcne || in.PrimaryConcern == ConcernOiliness {
		steps = append(steps, Step{
			ProductType:     "toner",
			Frequency:       "daily",
			Instructions:    "Apply a balancing toner to clean skin.",
			WaitTimeMinutes: 1,
		})
	}
	steps = append(steps,
		Step{
			ProductType:     "serum",
			Frequency:       "daily",
			Instructions:    "Apply an antioxidant serum to protect against environmental damage.",
			WaitTimeMinutes: 2,
		},
		Step{
			ProductType:     "moisturizer",
			Frequency:       "daily",
			Instructions:    moisturizerInstructions(in.PrimaryConcern),
			WaitTimeMinutes: 2,
		},
		// Sunscreen is mandatory and always the last AM step.
		Step{
			ProductType:  "sunscreen",
			Frequency:    "daily",
			Instructions: "Apply broad-spectrum SPF 30+ sunscreen. Reapply every 2 hours if outdoors.",
		},
	)
	return numberSteps(steps)
}

func buildPM(in Input, act *active) []Step {
	steps := []Step{{
		ProductType:  "cleanser",
		Frequency:    "daily",
		Instructions: cleanserInstructions(in.PrimaryConcern),
	}}
	switch in.PrimaryConcern {
	case ConcernAcne, ConcernOiliness, ConcernRedness:
		steps = append(steps, Step{
			ProductType:     "toner",
			Frequency:       "daily",
			Instructions:    "Apply toner to balance and prep skin.",
			WaitTimeMinutes: 1,
		})
	}
	if act != nil {
		steps = append(steps, Step{
			ProductType:     "treatment",
			Ingredient:      act.Ingredient,
			Frequency:       act.Frequency,
			Instructions:    act.Why,
			WaitTimeMinutes: 5,
		})
	}
	steps = append(steps,
		Step{
			ProductType:     "serum",
			Frequency:       "daily",
			Instructions:    "Apply a hydrating or repairing serum based on your skin's needs.",
			WaitTimeMinutes: 2,
		},
		Step{
			ProductType:  "moisturizer",
			Frequency:    "daily",
			Instructions: moisturizerInstructions(in.PrimaryConcern),
		},
	)
	return numberSteps(steps)
}

func numberSteps(steps []Step) []Step {
	for i := range steps {
		steps[i].StepNumber = i + 1
	}
	return steps
}

func cleanserInstructions(c Concern) string {
	switch c {
	case ConcernAcne:
		return "Use a gentle salicylic acid cleanser. Massage for 30 seconds, rinse with lukewarm water."
	case ConcernRedness:
		return "Use a gentle, fragrance-free cream cleanser. Avoid hot water and harsh scrubbing."
	case ConcernDryness:
		return "Use a hydrating, non-foaming cleanser. Pat skin instead of rubbing."
	default:
		return "Use a gel-based or foaming cleanser to remove excess oil without stripping."
	}
}

func moisturizerInstructions(c Concern) string {
	switch c {
	case ConcernDryness:
		return "Apply a rich, emollient moisturizer."
	case ConcernOiliness:
		return "Apply a lightweight, oil-free gel moisturizer."
	default:
		return "Apply a moisturizer appropriate for your skin type."
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
