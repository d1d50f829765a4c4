package ai

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nutriscan/nutriscan/internal/domain/assessment"
)

// Clinical cutoffs for the rule-based estimate. A lab value below its cutoff
// flags the matching deficiency.
const (
	ferritinCutoff   = 30.0
	b12Cutoff        = 200.0
	vitaminDCutoff   = 20.0
	calciumCutoff    = 8.5
	hemoglobinCutoff = 12.0
)

const fallbackConfidence = 0.35

const fallbackModelPrefix = "fallback-rules-v1"

type flaggedDeficiency struct {
	name     string
	severity float64
	foods    string
}

// Fallback computes a deterministic local estimate when the prediction
// service is unavailable or returned nothing usable. It thresholds the
// decrypted lab values against fixed clinical cutoffs, derives a 0-3 overall
// severity from deficiency count and mean symptom score, and emits templated
// recommendations. The triggering reason is kept, truncated, in the model
// version so stored records always show whether a real model produced them.
func Fallback(a *assessment.Assessment, reason string) *assessment.Analysis {
	var flags []flaggedDeficiency

	preds := assessment.Predictions{}

	if below(a.Ferritin, ferritinCutoff) || below(a.Hemoglobin, hemoglobinCutoff) {
		sev := shortfallSeverity(a.Ferritin, ferritinCutoff)
		preds.IronDef = 1
		preds.IronSeverity = sev
		flags = append(flags, flaggedDeficiency{
			name:     "iron",
			severity: sev,
			foods:    "lentils, spinach, red meat, fortified cereals",
		})
	}

	if below(a.VitaminB12, b12Cutoff) {
		sev := shortfallSeverity(a.VitaminB12, b12Cutoff)
		preds.B12Def = 1
		preds.B12Severity = sev
		flags = append(flags, flaggedDeficiency{
			name:     "vitamin B12",
			severity: sev,
			foods:    "eggs, dairy, fish, fortified nutritional yeast",
		})
	}

	if below(a.VitaminD, vitaminDCutoff) {
		sev := shortfallSeverity(a.VitaminD, vitaminDCutoff)
		preds.VitDDef = 1
		preds.VitDSeverity = sev
		flags = append(flags, flaggedDeficiency{
			name:     "vitamin D",
			severity: sev,
			foods:    "oily fish, egg yolk, fortified milk; regular sunlight",
		})
	}

	if below(a.Calcium, calciumCutoff) {
		sev := shortfallSeverity(a.Calcium, calciumCutoff)
		preds.CalciumDef = 1
		preds.CalciumSeverity = sev
		flags = append(flags, flaggedDeficiency{
			name:     "calcium",
			severity: sev,
			foods:    "dairy, leafy greens, almonds, tofu",
		})
	}

	level := overallLevel(len(flags), a.MeanSymptomScore())
	preds.OverallSeverity = float64(level)

	an := &assessment.Analysis{
		Insights:        insightsText(flags, level),
		Recommendations: recommendationsText(flags),
		RiskFactors:     riskFactorsText(a),
		Confidence:      fallbackConfidence,
		ProcessedAt:     time.Now().UTC(),
		ModelVersion:    fmt.Sprintf("%s (%s)", fallbackModelPrefix, truncate(reason, 80)),
		Predictions:     preds,
		Guidance:        guidanceFor(flags),
	}

	return an
}

func below(v *assessment.LabValue, cutoff float64) bool {
	return v != nil && v.Raw == "" && v.Value < cutoff
}

// shortfallSeverity scales how far below the cutoff a value sits into a
// 0-100 severity, clamped to [10, 95].
func shortfallSeverity(v *assessment.LabValue, cutoff float64) float64 {
	if v == nil || v.Raw != "" {
		return 10
	}

	pct := (cutoff - v.Value) / cutoff * 100

	return math.Min(95, math.Max(10, math.Round(pct)))
}

func overallLevel(deficiencies int, meanSymptom float64) int {
	level := deficiencies

	if meanSymptom >= 1.5 {
		level++
	}

	if level > 3 {
		level = 3
	}

	return level
}

func insightsText(flags []flaggedDeficiency, level int) string {
	if len(flags) == 0 {
		return "Rule-based screening found no lab values below clinical cutoffs."
	}

	names := make([]string, 0, len(flags))

	for _, f := range flags {
		names = append(names, f.name)
	}

	return fmt.Sprintf(
		"Rule-based screening flagged possible %s deficiency (overall severity %d of 3). Lab values were compared against fixed clinical cutoffs; this is not a model prediction.",
		strings.Join(names, ", "), level,
	)
}

func recommendationsText(flags []flaggedDeficiency) string {
	if len(flags) == 0 {
		return "Maintain your current diet and recheck lab values at your next routine screening."
	}

	parts := make([]string, 0, len(flags))

	for _, f := range flags {
		parts = append(parts, fmt.Sprintf("for %s: include %s", f.name, f.foods))
	}

	return "Dietary suggestions: " + strings.Join(parts, "; ") + ". Discuss supplementation with a clinician before starting any."
}

func riskFactorsText(a *assessment.Assessment) string {
	var risks []string

	if a.Vegetarian != nil && *a.Vegetarian == 1 {
		risks = append(risks, "vegetarian diet (iron and B12 intake)")
	}

	if a.Smoking != nil && *a.Smoking == 1 {
		risks = append(risks, "smoking")
	}

	if a.SunlightMin != nil && *a.SunlightMin < 15 {
		risks = append(risks, "low sunlight exposure (vitamin D synthesis)")
	}

	if a.JunkFoodFreq != nil && *a.JunkFoodFreq >= 2 {
		risks = append(risks, "frequent processed food intake")
	}

	if len(risks) == 0 {
		return ""
	}

	return strings.Join(risks, "; ")
}

func guidanceFor(flags []flaggedDeficiency) assessment.Guidance {
	if len(flags) == 0 {
		return assessment.Guidance{
			DietPlan: "Balanced diet with regular servings of vegetables, protein and dairy or fortified alternatives.",
		}
	}

	eat := make([]string, 0, len(flags))
	names := make([]string, 0, len(flags))

	for _, f := range flags {
		eat = append(eat, f.foods)
		names = append(names, f.name)
	}

	return assessment.Guidance{
		DietPlan:        fmt.Sprintf("Targeted plan addressing %s intake over the next 8-12 weeks.", strings.Join(names, ", ")),
		FoodsToEat:      strings.Join(eat, "; "),
		FoodsToAvoid:    "Tea or coffee with iron-rich meals; excess alcohol; highly processed snacks.",
		Supplements:     "Consider clinician-guided supplementation for: " + strings.Join(names, ", ") + ".",
		LifestyleAdvice: "Re-test flagged lab values in 8-12 weeks to confirm the trend.",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
