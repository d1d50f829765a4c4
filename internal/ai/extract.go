package ai

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nutriscan/nutriscan/internal/domain/assessment"
)

// The upstream service has shipped several response shapes over time:
// sometimes the result is wrapped in a "prediction" envelope, sometimes the
// whole body is double-JSON-encoded as a string, sometimes it arrives as a
// one-element array. normalizeResponse unwraps all of these before
// validating that the result is a non-null object.
func normalizeResponse(data []byte) (map[string]any, error) {
	var v any

	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	for range 4 {
		switch t := v.(type) {
		case string:
			// double-encoded payload
			var inner any

			if err := json.Unmarshal([]byte(t), &inner); err != nil {
				return nil, errors.New("response is a non-JSON string")
			}

			v = inner
		case []any:
			if len(t) == 0 {
				return nil, errors.New("response is an empty array")
			}

			v = t[0]
		case map[string]any:
			if wrapped, ok := t["prediction"]; ok && len(t) <= 2 {
				v = wrapped
				continue
			}

			return t, nil
		default:
			return nil, errors.New("response is not an object")
		}
	}

	obj, ok := v.(map[string]any)

	if !ok {
		return nil, errors.New("response is not an object")
	}

	return obj, nil
}

var numericKeys = []string{
	"iron_def", "b12_def", "vitd_def", "calcium_def", "folate_def",
	"magnesium_def", "zinc_def", "protein_def", "iodine_def", "omega3_def",
	"vit_a_def",
	"iron_severity", "b12_severity", "vitd_severity", "calcium_severity",
	"folate_severity", "magnesium_severity", "zinc_severity",
	"protein_severity", "iodine_severity", "omega3_severity",
	"vit_a_severity",
	"overall_severity",
}

var textKeys = []string{
	"diet_plan", "foods_to_eat", "foods_to_avoid", "supplements",
	"medication_notes", "lifestyle_advice",
}

// extractAnalysis pulls the fixed allow-lists out of whichever nesting the
// response uses. Numeric fields come from prediction1, outputs, modelOutputs
// or the top level, in that preference order; free text comes from
// prediction2 and prediction3. Both snake_case and camelCase key variants
// are accepted. Returns ok=false when nothing usable was found.
func extractAnalysis(obj map[string]any) (*assessment.Analysis, bool) {
	numbers := pickNumericContainer(obj)

	found := 0
	values := make(map[string]float64, len(numericKeys))

	for _, key := range numericKeys {
		if raw, ok := lookup(numbers, key); ok {
			if f, ok := coerceNumber(raw); ok {
				values[key] = f
				found++
			}
		}
	}

	texts := make(map[string]string, len(textKeys))

	for _, key := range textKeys {
		for _, container := range []string{"prediction2", "prediction3"} {
			nested, ok := childObject(obj, container)

			if !ok {
				continue
			}

			if raw, ok := lookup(nested, key); ok {
				texts[key] = stringify(raw)
				break
			}
		}
	}

	insights := textAt(obj, "insights")
	recommendations := textAt(obj, "recommendations")
	riskFactors := textAt(obj, "risk_factors")

	if found == 0 && len(texts) == 0 && insights == "" && recommendations == "" {
		return nil, false
	}

	an := &assessment.Analysis{
		Insights:        insights,
		Recommendations: recommendations,
		RiskFactors:     riskFactors,
		Confidence:      numberAt(obj, "confidence", 0.8),
		ProcessedAt:     time.Now().UTC(),
		ModelVersion:    modelVersion(obj),
		Predictions:     predictionsFrom(values),
		Guidance: assessment.Guidance{
			DietPlan:        texts["diet_plan"],
			FoodsToEat:      texts["foods_to_eat"],
			FoodsToAvoid:    texts["foods_to_avoid"],
			Supplements:     texts["supplements"],
			MedicationNotes: texts["medication_notes"],
			LifestyleAdvice: texts["lifestyle_advice"],
		},
	}

	return an, true
}

func pickNumericContainer(obj map[string]any) map[string]any {
	for _, name := range []string{"prediction1", "outputs", "modelOutputs"} {
		nested, ok := childObject(obj, name)

		if !ok {
			continue
		}

		for _, key := range numericKeys {
			if _, hit := lookup(nested, key); hit {
				return nested
			}
		}
	}

	return obj
}

func childObject(obj map[string]any, name string) (map[string]any, bool) {
	raw, ok := lookup(obj, name)

	if !ok {
		return nil, false
	}

	nested, ok := raw.(map[string]any)

	return nested, ok
}

// lookup tries the snake_case key, then its camelCase variant.
func lookup(obj map[string]any, key string) (any, bool) {
	if obj == nil {
		return nil, false
	}

	if v, ok := obj[key]; ok {
		return v, true
	}

	if v, ok := obj[snakeToCamel(key)]; ok {
		return v, true
	}

	return nil, false
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")

	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}

		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}

	return strings.Join(parts, "")
}

func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	b, err := json.Marshal(v)

	if err != nil {
		return ""
	}

	return string(b)
}

func textAt(obj map[string]any, key string) string {
	if raw, ok := lookup(obj, key); ok {
		return stringify(raw)
	}

	return ""
}

func numberAt(obj map[string]any, key string, fallback float64) float64 {
	if raw, ok := lookup(obj, key); ok {
		if f, ok := coerceNumber(raw); ok {
			return f
		}
	}

	return fallback
}

func modelVersion(obj map[string]any) string {
	if v := textAt(obj, "model_version"); v != "" {
		return v
	}

	return "external-v1"
}

func predictionsFrom(values map[string]float64) assessment.Predictions {
	return assessment.Predictions{
		IronDef:      values["iron_def"],
		B12Def:       values["b12_def"],
		VitDDef:      values["vitd_def"],
		CalciumDef:   values["calcium_def"],
		FolateDef:    values["folate_def"],
		MagnesiumDef: values["magnesium_def"],
		ZincDef:      values["zinc_def"],
		ProteinDef:   values["protein_def"],
		IodineDef:    values["iodine_def"],
		Omega3Def:    values["omega3_def"],
		VitADef:      values["vit_a_def"],

		IronSeverity:      values["iron_severity"],
		B12Severity:       values["b12_severity"],
		VitDSeverity:      values["vitd_severity"],
		CalciumSeverity:   values["calcium_severity"],
		FolateSeverity:    values["folate_severity"],
		MagnesiumSeverity: values["magnesium_severity"],
		ZincSeverity:      values["zinc_severity"],
		ProteinSeverity:   values["protein_severity"],
		IodineSeverity:    values["iodine_severity"],
		Omega3Severity:    values["omega3_severity"],
		VitASeverity:      values["vit_a_severity"],

		OverallSeverity: values["overall_severity"],
	}
}
