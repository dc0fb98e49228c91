package routine

// Product recommendation lookup tables. Static data, not algorithmic: the
// routine policy decides which single active a plan carries; these tables
// give the user shopping guidance per concern.

type Recommendation struct {
	Ingredient    string `json:"ingredient"`
	Concentration string `json:"concentration"`
	Benefits      string `json:"benefits"`
	Application   string `json:"application"`
}

var recommendationsByConcern = map[Concern][]Recommendation{
	ConcernAcne: {
		{Ingredient: "Salicylic Acid", Concentration: "0.5-2%", Benefits: "Exfoliates, unclogs pores", Application: "AM/PM"},
		{Ingredient: "Benzoyl Peroxide", Concentration: "2.5-5%", Benefits: "Kills acne bacteria", Application: "AM/PM"},
		{Ingredient: "Niacinamide", Concentration: "5-10%", Benefits: "Reduces inflammation", Application: "AM/PM"},
		{Ingredient: "Retinol", Concentration: "0.25-1%", Benefits: "Cell turnover, prevents clogs", Application: "PM"},
	},
	ConcernRedness: {
		{Ingredient: "Niacinamide", Concentration: "5-10%", Benefits: "Reduces redness", Application: "AM/PM"},
		{Ingredient: "Azelaic Acid", Concentration: "10-20%", Benefits: "Anti-inflammatory", Application: "AM/PM"},
		{Ingredient: "Centella Asiatica", Concentration: "As directed", Benefits: "Calming, healing", Application: "AM/PM"},
		{Ingredient: "Green Tea Extract", Concentration: "As directed", Benefits: "Antioxidant, soothing", Application: "AM/PM"},
	},
	ConcernDryness: {
		{Ingredient: "Hyaluronic Acid", Concentration: "As directed", Benefits: "Deep hydration", Application: "AM/PM"},
		{Ingredient: "Ceramides", Concentration: "As directed", Benefits: "Barrier repair", Application: "AM/PM"},
		{Ingredient: "Glycerin", Concentration: "As directed", Benefits: "Moisture retention", Application: "AM/PM"},
		{Ingredient: "Urea", Concentration: "5-10%", Benefits: "Hydration, exfoliation", Application: "PM"},
	},
	ConcernOiliness: {
		{Ingredient: "Niacinamide", Concentration: "5-10%", Benefits: "Regulates oil", Application: "AM/PM"},
		{Ingredient: "Salicylic Acid", Concentration: "0.5-2%", Benefits: "Controls oil", Application: "AM/PM"},
		{Ingredient: "Zinc", Concentration: "As directed", Benefits: "Oil regulation", Application: "AM/PM"},
		{Ingredient: "Retinol", Concentration: "0.25-0.5%", Benefits: "Normalizes oil", Application: "PM"},
	},
}

// Recommendations returns the product suggestions for a concern. Unknown
// concerns return nil.
func Recommendations(c Concern) []Recommendation {
	return recommendationsByConcern[c]
}

// Ingredient category conflict pairs. Order-insensitive; strong acids also
// conflict with themselves (no acid stacking).
var conflictPairs = [][2]string{
	{"retinoid", "strong_acid"},
	{"retinoid", "benzoyl_peroxide"},
	{"strong_acid", "strong_acid"},
}

// HasConflict reports whether two ingredient categories must not be combined
// in the same routine.
func HasConflict(a, b string) bool {
	for _, p := range conflictPairs {
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return true
		}
	}
	return false
}
