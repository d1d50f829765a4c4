package ai

import (
	"testing"
)

func TestNormalizeResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"plain_object", `{"prediction1":{"iron_def":1}}`},
		{"prediction_envelope", `{"prediction":{"prediction1":{"iron_def":1}}}`},
		{"array_of_one", `[{"prediction1":{"iron_def":1}}]`},
		{"double_encoded", `"{\"prediction1\":{\"iron_def\":1}}"`},
		{"envelope_in_array", `[{"prediction":{"prediction1":{"iron_def":1}}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := normalizeResponse([]byte(tt.body))

			if err != nil {
				t.Fatalf("normalizeResponse: %v", err)
			}

			an, ok := extractAnalysis(obj)

			if !ok {
				t.Fatalf("extractAnalysis: not usable")
			}

			if an.Predictions.IronDef != 1 {
				t.Fatalf("iron_def = %v", an.Predictions.IronDef)
			}
		})
	}
}

func TestNormalizeResponseRejectsGarbage(t *testing.T) {
	for _, body := range []string{`null`, `[]`, `42`, `"not json inside"`} {
		if _, err := normalizeResponse([]byte(body)); err == nil {
			t.Errorf("normalizeResponse(%s): want error", body)
		}
	}
}

func TestExtractCamelCaseAndCoercion(t *testing.T) {
	obj, err := normalizeResponse([]byte(`{
		"modelOutputs": {"ironDef": "1", "ironSeverity": 55.5, "b12Def": true},
		"prediction2": {"dietPlan": "eat greens", "foodsToEat": ["spinach","lentils"]},
		"prediction3": {"medication_notes": "none"}
	}`))

	if err != nil {
		t.Fatalf("normalizeResponse: %v", err)
	}

	an, ok := extractAnalysis(obj)

	if !ok {
		t.Fatalf("extractAnalysis: not usable")
	}

	if an.Predictions.IronDef != 1 {
		t.Errorf("string-coerced iron_def = %v", an.Predictions.IronDef)
	}

	if an.Predictions.IronSeverity != 55.5 {
		t.Errorf("iron_severity = %v", an.Predictions.IronSeverity)
	}

	if an.Predictions.B12Def != 1 {
		t.Errorf("bool-coerced b12_def = %v", an.Predictions.B12Def)
	}

	if an.Guidance.DietPlan != "eat greens" {
		t.Errorf("diet_plan = %q", an.Guidance.DietPlan)
	}

	// non-string values are JSON-stringified
	if an.Guidance.FoodsToEat != `["spinach","lentils"]` {
		t.Errorf("foods_to_eat = %q", an.Guidance.FoodsToEat)
	}

	if an.Guidance.MedicationNotes != "none" {
		t.Errorf("medication_notes = %q", an.Guidance.MedicationNotes)
	}
}

func TestContainerPreferenceOrder(t *testing.T) {
	// prediction1 wins over outputs when both are present
	obj, _ := normalizeResponse([]byte(`{
		"prediction1": {"iron_def": 1},
		"outputs": {"iron_def": 0, "b12_def": 1}
	}`))

	an, ok := extractAnalysis(obj)

	if !ok {
		t.Fatalf("not usable")
	}

	if an.Predictions.IronDef != 1 {
		t.Errorf("iron_def = %v, want value from prediction1", an.Predictions.IronDef)
	}

	if an.Predictions.B12Def != 0 {
		t.Errorf("b12_def leaked from outputs container")
	}
}

func TestTopLevelFallbackContainer(t *testing.T) {
	obj, _ := normalizeResponse([]byte(`{"vitd_def": 1, "overall_severity": 2}`))

	an, ok := extractAnalysis(obj)

	if !ok {
		t.Fatalf("not usable")
	}

	if an.Predictions.VitDDef != 1 || an.Predictions.OverallSeverity != 2 {
		t.Errorf("predictions = %+v", an.Predictions)
	}
}

func TestExtractUnusable(t *testing.T) {
	obj, _ := normalizeResponse([]byte(`{"status":"ok","elapsed":1.2}`))

	if _, ok := extractAnalysis(obj); ok {
		t.Fatalf("extractAnalysis usable for empty prediction")
	}
}

func TestSnakeToCamel(t *testing.T) {
	cases := map[string]string{
		"iron_def":         "ironDef",
		"overall_severity": "overallSeverity",
		"foods_to_eat":     "foodsToEat",
		"plain":            "plain",
	}

	for in, want := range cases {
		if got := snakeToCamel(in); got != want {
			t.Errorf("snakeToCamel(%q) = %q, want %q", in, got, want)
		}
	}
}
