package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutriscan/nutriscan/internal/domain/assessment"
	"github.com/nutriscan/nutriscan/internal/security"
)

type AssessmentsRepo struct {
	pool    *pgxpool.Pool
	cipher  *security.FieldCipher
	metrics Metrics
}

func NewAssessmentsRepo(pool *pgxpool.Pool, cipher *security.FieldCipher, metrics Metrics) *AssessmentsRepo {
	return &AssessmentsRepo{pool: pool, cipher: cipher, metrics: metrics}
}

const assessmentColumns = `id, user_id,
	fatigue, hair_loss, acidity, dizziness, muscle_pain, numbness,
	vegetarian, smoking, alcohol, iron_food_freq, dairy_freq, junk_food_freq, sunlight_min,
	hemoglobin, ferritin, vitamin_b12, vitamin_d, calcium,
	status, ai_analysis, completed_at, created_at, updated_at`

func (r *AssessmentsRepo) Create(ctx context.Context, a assessment.Assessment) error {
	row, err := r.encode(a)

	if err != nil {
		return err
	}

	return observe(r.metrics, "assessments.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO assessments (`+assessmentColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
			row.ID, row.UserID,
			row.Fatigue, row.HairLoss, row.Acidity, row.Dizziness, row.MusclePain, row.Numbness,
			row.Vegetarian, row.Smoking, row.Alcohol,
			row.IronFoodFreq, row.DairyFreq, row.JunkFoodFreq, row.SunlightMin,
			row.Hemoglobin, row.Ferritin, row.VitaminB12, row.VitaminD, row.Calcium,
			row.Status, row.AIAnalysis, row.CompletedAt, row.CreatedAt, row.UpdatedAt,
		)

		return err
	})
}

func (r *AssessmentsRepo) GetByID(ctx context.Context, id string) (assessment.Assessment, error) {
	var row assessmentRow

	err := observe(r.metrics, "assessments.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id,
		).Scan(row.dests()...)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assessment.Assessment{}, assessment.ErrNotFound
		}

		return assessment.Assessment{}, err
	}

	return r.decode(row)
}

// ListByUser returns the caller's assessments newest first, plus the total
// count for pagination.
func (r *AssessmentsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]assessment.Assessment, int, error) {
	var out []assessment.Assessment

	total := 0

	err := observe(r.metrics, "assessments.list_by_user", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+assessmentColumns+`, COUNT(*) OVER() AS total
			 FROM assessments
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2 OFFSET $3`,
			userID, limit, offset,
		)

		if err != nil {
			return err
		}

		defer rows.Close()

		out = make([]assessment.Assessment, 0, limit)

		for rows.Next() {
			var row assessmentRow
			var t int

			if err := rows.Scan(append(row.dests(), &t)...); err != nil {
				return err
			}

			a, err := r.decode(row)

			if err != nil {
				return err
			}

			total = t
			out = append(out, a)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (r *AssessmentsRepo) Update(ctx context.Context, a assessment.Assessment) error {
	row, err := r.encode(a)

	if err != nil {
		return err
	}

	return observe(r.metrics, "assessments.update", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE assessments
			 SET fatigue = $2, hair_loss = $3, acidity = $4, dizziness = $5,
			     muscle_pain = $6, numbness = $7,
			     vegetarian = $8, smoking = $9, alcohol = $10,
			     iron_food_freq = $11, dairy_freq = $12, junk_food_freq = $13, sunlight_min = $14,
			     hemoglobin = $15, ferritin = $16, vitamin_b12 = $17, vitamin_d = $18, calcium = $19,
			     status = $20, ai_analysis = $21, completed_at = $22, updated_at = NOW()
			 WHERE id = $1`,
			row.ID,
			row.Fatigue, row.HairLoss, row.Acidity, row.Dizziness, row.MusclePain, row.Numbness,
			row.Vegetarian, row.Smoking, row.Alcohol,
			row.IronFoodFreq, row.DairyFreq, row.JunkFoodFreq, row.SunlightMin,
			row.Hemoglobin, row.Ferritin, row.VitaminB12, row.VitaminD, row.Calcium,
			row.Status, row.AIAnalysis, row.CompletedAt,
		)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return assessment.ErrNotFound
		}

		return nil
	})
}

func (r *AssessmentsRepo) Delete(ctx context.Context, id string) error {
	return observe(r.metrics, "assessments.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return assessment.ErrNotFound
		}

		return nil
	})
}

// assessmentRow is the storage shape: labs as ciphertext envelopes, the AI
// analysis as raw jsonb bytes.
type assessmentRow struct {
	ID     string
	UserID string

	Fatigue    *int
	HairLoss   *int
	Acidity    *int
	Dizziness  *int
	MusclePain *int
	Numbness   *int

	Vegetarian   *int
	Smoking      *int
	Alcohol      *int
	IronFoodFreq *int
	DairyFreq    *int
	JunkFoodFreq *int
	SunlightMin  *int

	Hemoglobin *string
	Ferritin   *string
	VitaminB12 *string
	VitaminD   *string
	Calcium    *string

	Status      string
	AIAnalysis  []byte
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (row *assessmentRow) dests() []any {
	return []any{
		&row.ID, &row.UserID,
		&row.Fatigue, &row.HairLoss, &row.Acidity, &row.Dizziness, &row.MusclePain, &row.Numbness,
		&row.Vegetarian, &row.Smoking, &row.Alcohol,
		&row.IronFoodFreq, &row.DairyFreq, &row.JunkFoodFreq, &row.SunlightMin,
		&row.Hemoglobin, &row.Ferritin, &row.VitaminB12, &row.VitaminD, &row.Calcium,
		&row.Status, &row.AIAnalysis, &row.CompletedAt, &row.CreatedAt, &row.UpdatedAt,
	}
}

func (r *AssessmentsRepo) encode(a assessment.Assessment) (assessmentRow, error) {
	row := assessmentRow{
		ID:     a.ID,
		UserID: a.UserID,

		Fatigue:    a.Fatigue,
		HairLoss:   a.HairLoss,
		Acidity:    a.Acidity,
		Dizziness:  a.Dizziness,
		MusclePain: a.MusclePain,
		Numbness:   a.Numbness,

		Vegetarian:   a.Vegetarian,
		Smoking:      a.Smoking,
		Alcohol:      a.Alcohol,
		IronFoodFreq: a.IronFoodFreq,
		DairyFreq:    a.DairyFreq,
		JunkFoodFreq: a.JunkFoodFreq,
		SunlightMin:  a.SunlightMin,

		Status:      string(a.Status),
		CompletedAt: a.CompletedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}

	labs := []struct {
		src *assessment.LabValue
		dst **string
	}{
		{a.Hemoglobin, &row.Hemoglobin},
		{a.Ferritin, &row.Ferritin},
		{a.VitaminB12, &row.VitaminB12},
		{a.VitaminD, &row.VitaminD},
		{a.Calcium, &row.Calcium},
	}

	for _, l := range labs {
		if l.src == nil {
			continue
		}

		enc, err := r.cipher.Encrypt(l.src.String())

		if err != nil {
			return assessmentRow{}, err
		}

		*l.dst = &enc
	}

	if a.AIAnalysis != nil {
		b, err := json.Marshal(a.AIAnalysis)

		if err != nil {
			return assessmentRow{}, err
		}

		row.AIAnalysis = b
	}

	return row, nil
}

func (r *AssessmentsRepo) decode(row assessmentRow) (assessment.Assessment, error) {
	a := assessment.Assessment{
		ID:     row.ID,
		UserID: row.UserID,

		Fatigue:    row.Fatigue,
		HairLoss:   row.HairLoss,
		Acidity:    row.Acidity,
		Dizziness:  row.Dizziness,
		MusclePain: row.MusclePain,
		Numbness:   row.Numbness,

		Vegetarian:   row.Vegetarian,
		Smoking:      row.Smoking,
		Alcohol:      row.Alcohol,
		IronFoodFreq: row.IronFoodFreq,
		DairyFreq:    row.DairyFreq,
		JunkFoodFreq: row.JunkFoodFreq,
		SunlightMin:  row.SunlightMin,

		Status:      assessment.Status(row.Status),
		CompletedAt: row.CompletedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}

	a.Hemoglobin = r.decodeLab(row.Hemoglobin)
	a.Ferritin = r.decodeLab(row.Ferritin)
	a.VitaminB12 = r.decodeLab(row.VitaminB12)
	a.VitaminD = r.decodeLab(row.VitaminD)
	a.Calcium = r.decodeLab(row.Calcium)

	if len(row.AIAnalysis) > 0 {
		var an assessment.Analysis

		if err := json.Unmarshal(row.AIAnalysis, &an); err != nil {
			return assessment.Assessment{}, err
		}

		a.AIAnalysis = &an
	}

	return a, nil
}

// decodeLab decrypts a stored lab column. An undecryptable envelope comes
// back from Decrypt as-is and surfaces as LabValue.Raw rather than failing
// the whole read.
func (r *AssessmentsRepo) decodeLab(s *string) *assessment.LabValue {
	if s == nil {
		return nil
	}

	plain := r.cipher.Decrypt(*s)

	if f, err := strconv.ParseFloat(plain, 64); err == nil {
		return assessment.Lab(f)
	}

	return &assessment.LabValue{Raw: plain}
}
