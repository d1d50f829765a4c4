package ai

import (
	"strings"
	"testing"

	"github.com/nutriscan/nutriscan/internal/domain/assessment"
)

func TestFallbackDeterminism(t *testing.T) {
	a := testAssessment()
	a.Ferritin = assessment.Lab(20)
	a.VitaminB12 = assessment.Lab(250)
	a.VitaminD = assessment.Lab(25)
	a.Calcium = assessment.Lab(9.0)

	an := Fallback(a, "forced failure")

	p := an.Predictions

	if p.IronDef != 1 {
		t.Errorf("iron_def = %v, want 1 (ferritin 20 < 30)", p.IronDef)
	}

	if p.B12Def != 0 {
		t.Errorf("b12_def = %v, want 0 (b12 250 >= 200)", p.B12Def)
	}

	if p.VitDDef != 0 {
		t.Errorf("vitd_def = %v, want 0 (vitamin D 25 >= 20)", p.VitDDef)
	}

	if p.CalciumDef != 0 {
		t.Errorf("calcium_def = %v, want 0 (calcium 9.0 >= 8.5)", p.CalciumDef)
	}

	if !strings.HasPrefix(an.ModelVersion, "fallback-rules") {
		t.Errorf("modelVersion = %q, want fallback-rules prefix", an.ModelVersion)
	}

	if !strings.Contains(an.ModelVersion, "forced failure") {
		t.Errorf("modelVersion = %q, want triggering reason included", an.ModelVersion)
	}

	if an.Confidence != fallbackConfidence {
		t.Errorf("confidence = %v", an.Confidence)
	}
}

func TestFallbackLowHemoglobinFlagsIron(t *testing.T) {
	a := testAssessment()
	a.Ferritin = assessment.Lab(60) // fine on its own
	a.Hemoglobin = assessment.Lab(10.5)

	an := Fallback(a, "timeout")

	if an.Predictions.IronDef != 1 {
		t.Errorf("iron_def = %v, want 1 for hemoglobin 10.5", an.Predictions.IronDef)
	}
}

func TestFallbackNoFlags(t *testing.T) {
	a := testAssessment()
	a.Hemoglobin = assessment.Lab(14)
	a.Ferritin = assessment.Lab(80)
	a.VitaminB12 = assessment.Lab(400)
	a.VitaminD = assessment.Lab(35)
	a.Calcium = assessment.Lab(9.5)

	an := Fallback(a, "unreachable")

	p := an.Predictions

	if p.IronDef+p.B12Def+p.VitDDef+p.CalciumDef != 0 {
		t.Errorf("flags raised with healthy labs: %+v", p)
	}

	if an.Guidance.DietPlan == "" {
		t.Errorf("guidance missing for healthy labs")
	}
}

func TestFallbackOverallSeverity(t *testing.T) {
	a := testAssessment()
	// two deficiencies, mean symptom score 1 (< 1.5)
	a.Ferritin = assessment.Lab(10)
	a.VitaminB12 = assessment.Lab(150)
	a.VitaminD = assessment.Lab(35)
	a.Calcium = assessment.Lab(9.5)
	a.Hemoglobin = assessment.Lab(14)

	an := Fallback(a, "x")

	if an.Predictions.OverallSeverity != 2 {
		t.Errorf("overall_severity = %v, want 2", an.Predictions.OverallSeverity)
	}

	// severity caps at 3 even with many flags and high symptoms
	three := 3
	a.Fatigue, a.HairLoss, a.Acidity = &three, &three, &three
	a.Dizziness, a.MusclePain, a.Numbness = &three, &three, &three
	a.VitaminD = assessment.Lab(10)
	a.Calcium = assessment.Lab(7)

	an = Fallback(a, "x")

	if an.Predictions.OverallSeverity != 3 {
		t.Errorf("overall_severity = %v, want capped at 3", an.Predictions.OverallSeverity)
	}
}

func TestFallbackReasonTruncated(t *testing.T) {
	long := strings.Repeat("x", 200)

	an := Fallback(testAssessment(), long)

	if len(an.ModelVersion) > len(fallbackModelPrefix)+90 {
		t.Errorf("modelVersion not truncated: %d chars", len(an.ModelVersion))
	}
}

func TestFallbackRecommendationsReferenceFlags(t *testing.T) {
	a := testAssessment() // ferritin 20 flags iron

	an := Fallback(a, "down")

	if !strings.Contains(an.Insights, "iron") {
		t.Errorf("insights do not mention iron: %q", an.Insights)
	}

	if !strings.Contains(an.Recommendations, "iron") {
		t.Errorf("recommendations do not mention iron: %q", an.Recommendations)
	}

	if !strings.Contains(an.Guidance.Supplements, "iron") {
		t.Errorf("supplements do not mention iron: %q", an.Guidance.Supplements)
	}
}
