package assessment

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
	StatusAnalyzed  Status = "analyzed"
	StatusArchived  Status = "archived"
)

var (
	ErrNotFound   = errors.New("assessment not found")
	ErrIncomplete = errors.New("assessment is missing required fields")
)

// Assessment is one self-reported health snapshot owned by exactly one user.
// Fields are pointers so a draft can be saved with gaps; completeness means
// every intake field is present. The five lab values are encrypted at rest.
type Assessment struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	// symptom scores, 0-3
	Fatigue    *int `json:"fatigue,omitempty"`
	HairLoss   *int `json:"hair_loss,omitempty"`
	Acidity    *int `json:"acidity,omitempty"`
	Dizziness  *int `json:"dizziness,omitempty"`
	MusclePain *int `json:"muscle_pain,omitempty"`
	Numbness   *int `json:"numbness,omitempty"`

	// lifestyle factors
	Vegetarian   *int `json:"vegetarian,omitempty"`
	Smoking      *int `json:"smoking,omitempty"`
	Alcohol      *int `json:"alcohol,omitempty"`
	IronFoodFreq *int `json:"iron_food_freq,omitempty"`
	DairyFreq    *int `json:"dairy_freq,omitempty"`
	JunkFoodFreq *int `json:"junk_food_freq,omitempty"`
	SunlightMin  *int `json:"sunlight_min,omitempty"`

	// lab values
	Hemoglobin *LabValue `json:"hemoglobin,omitempty"`
	Ferritin   *LabValue `json:"ferritin,omitempty"`
	VitaminB12 *LabValue `json:"vitamin_b12,omitempty"`
	VitaminD   *LabValue `json:"vitamin_d,omitempty"`
	Calcium    *LabValue `json:"calcium,omitempty"`

	Status      Status     `json:"status"`
	AIAnalysis  *Analysis  `json:"aiAnalysis,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateRequest carries the intake fields. All are optional so partial
// drafts can be stored; present values are bound to the clinical ranges.
type CreateRequest struct {
	Fatigue    *int `json:"fatigue" binding:"omitempty,min=0,max=3"`
	HairLoss   *int `json:"hair_loss" binding:"omitempty,min=0,max=3"`
	Acidity    *int `json:"acidity" binding:"omitempty,min=0,max=3"`
	Dizziness  *int `json:"dizziness" binding:"omitempty,min=0,max=3"`
	MusclePain *int `json:"muscle_pain" binding:"omitempty,min=0,max=3"`
	Numbness   *int `json:"numbness" binding:"omitempty,min=0,max=3"`

	Vegetarian   *int `json:"vegetarian" binding:"omitempty,min=0,max=1"`
	Smoking      *int `json:"smoking" binding:"omitempty,min=0,max=1"`
	Alcohol      *int `json:"alcohol" binding:"omitempty,min=0,max=1"`
	IronFoodFreq *int `json:"iron_food_freq" binding:"omitempty,min=0,max=3"`
	DairyFreq    *int `json:"dairy_freq" binding:"omitempty,min=0,max=3"`
	JunkFoodFreq *int `json:"junk_food_freq" binding:"omitempty,min=0,max=3"`
	SunlightMin  *int `json:"sunlight_min" binding:"omitempty,min=0,max=65"`

	Hemoglobin *float64 `json:"hemoglobin" binding:"omitempty,min=7.2,max=16.5"`
	Ferritin   *float64 `json:"ferritin" binding:"omitempty,min=4.5,max=165"`
	VitaminB12 *float64 `json:"vitamin_b12" binding:"omitempty,min=108,max=550"`
	VitaminD   *float64 `json:"vitamin_d" binding:"omitempty,min=4.5,max=49.5"`
	Calcium    *float64 `json:"calcium" binding:"omitempty,min=6.75,max=11.22"`
}

// UpdateRequest is a full replacement payload, same shape as create.
type UpdateRequest = CreateRequest

// NewFromCreateRequest builds a draft assessment from the incoming DTO.
// Lab values are limited to two decimal places; the range bounds are already
// enforced by binding tags.
func NewFromCreateRequest(userID string, req CreateRequest) (Assessment, error) {
	if err := validateDecimals(req); err != nil {
		return Assessment{}, err
	}

	now := time.Now().UTC()

	a := Assessment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	a.apply(req)

	return a, nil
}

// ApplyUpdate overwrites the intake fields from a full update payload.
func (a *Assessment) ApplyUpdate(req UpdateRequest) error {
	if err := validateDecimals(req); err != nil {
		return err
	}

	a.apply(req)
	a.UpdatedAt = time.Now().UTC()

	return nil
}

func (a *Assessment) apply(req CreateRequest) {
	a.Fatigue = req.Fatigue
	a.HairLoss = req.HairLoss
	a.Acidity = req.Acidity
	a.Dizziness = req.Dizziness
	a.MusclePain = req.MusclePain
	a.Numbness = req.Numbness

	a.Vegetarian = req.Vegetarian
	a.Smoking = req.Smoking
	a.Alcohol = req.Alcohol
	a.IronFoodFreq = req.IronFoodFreq
	a.DairyFreq = req.DairyFreq
	a.JunkFoodFreq = req.JunkFoodFreq
	a.SunlightMin = req.SunlightMin

	a.Hemoglobin = labFrom(req.Hemoglobin)
	a.Ferritin = labFrom(req.Ferritin)
	a.VitaminB12 = labFrom(req.VitaminB12)
	a.VitaminD = labFrom(req.VitaminD)
	a.Calcium = labFrom(req.Calcium)
}

func labFrom(v *float64) *LabValue {
	if v == nil {
		return nil
	}

	return Lab(*v)
}

func validateDecimals(req CreateRequest) error {
	labs := map[string]*float64{
		"hemoglobin":  req.Hemoglobin,
		"ferritin":    req.Ferritin,
		"vitamin_b12": req.VitaminB12,
		"vitamin_d":   req.VitaminD,
		"calcium":     req.Calcium,
	}

	for name, v := range labs {
		if v == nil {
			continue
		}

		scaled := *v * 100

		if math.Abs(scaled-math.Round(scaled)) > 1e-9 {
			return fmt.Errorf("%s: at most 2 decimal places allowed", name)
		}
	}

	return nil
}

// IsComplete reports whether every intake field is present.
func (a *Assessment) IsComplete() bool {
	ints := []*int{
		a.Fatigue, a.HairLoss, a.Acidity, a.Dizziness, a.MusclePain, a.Numbness,
		a.Vegetarian, a.Smoking, a.Alcohol,
		a.IronFoodFreq, a.DairyFreq, a.JunkFoodFreq, a.SunlightMin,
	}

	for _, v := range ints {
		if v == nil {
			return false
		}
	}

	labs := []*LabValue{a.Hemoglobin, a.Ferritin, a.VitaminB12, a.VitaminD, a.Calcium}

	for _, v := range labs {
		if v == nil {
			return false
		}
	}

	return true
}

// MarkCompletedIfReady moves draft -> completed once all fields are present.
// CompletedAt is set exactly once, when the status first becomes completed.
func (a *Assessment) MarkCompletedIfReady() bool {
	if a.Status != StatusDraft || !a.IsComplete() {
		return false
	}

	a.Status = StatusCompleted

	if a.CompletedAt == nil {
		now := time.Now().UTC()
		a.CompletedAt = &now
	}

	return true
}

// AttachAnalysis stores AI output and moves the record to analyzed.
func (a *Assessment) AttachAnalysis(an *Analysis) {
	a.AIAnalysis = an
	a.Status = StatusAnalyzed
	a.UpdatedAt = time.Now().UTC()
}

// MeanSymptomScore averages the six symptom scores, treating absent ones as
// zero. Used by the rule-based fallback.
func (a *Assessment) MeanSymptomScore() float64 {
	syms := []*int{a.Fatigue, a.HairLoss, a.Acidity, a.Dizziness, a.MusclePain, a.Numbness}

	sum := 0

	for _, s := range syms {
		if s != nil {
			sum += *s
		}
	}

	return float64(sum) / float64(len(syms))
}
