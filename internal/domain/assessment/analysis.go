package assessment

import "time"

// Analysis is the AI output attached to a completed assessment. ModelVersion
// distinguishes real model output from the locally computed rule-based
// fallback, and that distinction stays visible in the stored record.
type Analysis struct {
	Insights        string  `json:"insights,omitempty"`
	Recommendations string  `json:"recommendations,omitempty"`
	RiskFactors     string  `json:"riskFactors,omitempty"`
	Confidence      float64 `json:"confidence"`

	ProcessedAt  time.Time `json:"processedAt"`
	ModelVersion string    `json:"modelVersion"`

	Predictions Predictions `json:"predictions"`
	Guidance    Guidance    `json:"guidance"`
}

// Predictions is the fixed numeric allow-list extracted from the prediction
// service: binary deficiency flags (0/1), per-deficiency severity (0-100)
// and an overall severity.
type Predictions struct {
	IronDef      float64 `json:"iron_def"`
	B12Def       float64 `json:"b12_def"`
	VitDDef      float64 `json:"vitd_def"`
	CalciumDef   float64 `json:"calcium_def"`
	FolateDef    float64 `json:"folate_def"`
	MagnesiumDef float64 `json:"magnesium_def"`
	ZincDef      float64 `json:"zinc_def"`
	ProteinDef   float64 `json:"protein_def"`
	IodineDef    float64 `json:"iodine_def"`
	Omega3Def    float64 `json:"omega3_def"`
	VitADef      float64 `json:"vit_a_def"`

	IronSeverity      float64 `json:"iron_severity"`
	B12Severity       float64 `json:"b12_severity"`
	VitDSeverity      float64 `json:"vitd_severity"`
	CalciumSeverity   float64 `json:"calcium_severity"`
	FolateSeverity    float64 `json:"folate_severity"`
	MagnesiumSeverity float64 `json:"magnesium_severity"`
	ZincSeverity      float64 `json:"zinc_severity"`
	ProteinSeverity   float64 `json:"protein_severity"`
	IodineSeverity    float64 `json:"iodine_severity"`
	Omega3Severity    float64 `json:"omega3_severity"`
	VitASeverity      float64 `json:"vit_a_severity"`

	OverallSeverity float64 `json:"overall_severity"`
}

// Guidance is the fixed free-text allow-list: diet and medication advice.
type Guidance struct {
	DietPlan        string `json:"diet_plan,omitempty"`
	FoodsToEat      string `json:"foods_to_eat,omitempty"`
	FoodsToAvoid    string `json:"foods_to_avoid,omitempty"`
	Supplements     string `json:"supplements,omitempty"`
	MedicationNotes string `json:"medication_notes,omitempty"`
	LifestyleAdvice string `json:"lifestyle_advice,omitempty"`
}
