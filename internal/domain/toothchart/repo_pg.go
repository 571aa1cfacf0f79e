package toothchart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/endoflow/endoflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (r *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// =========== Tooth diagnosis ===========

const diagCols = `id, patient_id, consultation_id, tooth_number, status, color_code,
	primary_diagnosis, recommended_treatment, follow_up_required, created_at, updated_at`

func scanDiagnosis(row pgx.Row) (*ToothDiagnosis, error) {
	var d ToothDiagnosis
	var status, color string
	err := row.Scan(&d.ID, &d.PatientID, &d.ConsultationID, &d.ToothNumber, &status, &color,
		&d.PrimaryDiagnosis, &d.RecommendedTreatment, &d.FollowUpRequired, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	d.ColorCode = Color(color)
	return &d, nil
}

func collectDiagnoses(rows pgx.Rows) ([]*ToothDiagnosis, error) {
	defer rows.Close()
	var items []*ToothDiagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *storePG) GetLatestDiagnosis(ctx context.Context, patientID uuid.UUID, toothNumber string) (*ToothDiagnosis, error) {
	d, err := scanDiagnosis(r.conn(ctx).QueryRow(ctx, `SELECT `+diagCols+` FROM tooth_diagnosis
		WHERE patient_id = $1 AND tooth_number = $2
		ORDER BY updated_at DESC, created_at DESC LIMIT 1`, patientID, toothNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest diagnosis: %w", err)
	}
	return d, nil
}

func (r *storePG) UpsertDiagnosis(ctx context.Context, d *ToothDiagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tooth_diagnosis (id, patient_id, consultation_id, tooth_number, status, color_code,
			primary_diagnosis, recommended_treatment, follow_up_required, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10, NOW()),COALESCE($11, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			color_code = EXCLUDED.color_code,
			primary_diagnosis = EXCLUDED.primary_diagnosis,
			recommended_treatment = EXCLUDED.recommended_treatment,
			follow_up_required = EXCLUDED.follow_up_required,
			updated_at = EXCLUDED.updated_at
		WHERE tooth_diagnosis.updated_at <= EXCLUDED.updated_at`,
		d.ID, d.PatientID, d.ConsultationID, d.ToothNumber, string(d.Status), string(d.ColorCode),
		d.PrimaryDiagnosis, d.RecommendedTreatment, d.FollowUpRequired,
		nullTime(d.CreatedAt), nullTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert diagnosis %s: %w", d.ID, err)
	}
	return nil
}

func (r *storePG) ListDiagnosesByConsultation(ctx context.Context, consultationID, patientID uuid.UUID) ([]*ToothDiagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+diagCols+` FROM tooth_diagnosis
		WHERE consultation_id = $1 AND patient_id = $2
		ORDER BY updated_at DESC, tooth_number`, consultationID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses by consultation: %w", err)
	}
	return collectDiagnoses(rows)
}

func (r *storePG) ListAllDiagnoses(ctx context.Context, filter DiagnosisFilter) ([]*ToothDiagnosis, error) {
	var where []string
	var args []interface{}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + diagCols + ` FROM tooth_diagnosis`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY patient_id, tooth_number, updated_at DESC`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	return collectDiagnoses(rows)
}

func (r *storePG) ListLatestDiagnosesByPatient(ctx context.Context, patientID uuid.UUID) ([]*ToothDiagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT ON (tooth_number) `+diagCols+`
		FROM tooth_diagnosis WHERE patient_id = $1
		ORDER BY tooth_number, updated_at DESC, created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list tooth chart: %w", err)
	}
	return collectDiagnoses(rows)
}

// =========== Treatment ===========

const treatmentCols = `id, patient_id, consultation_id, appointment_id, treatment_type,
	tooth_number, status, created_at, updated_at`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	var status string
	err := row.Scan(&t.ID, &t.PatientID, &t.ConsultationID, &t.AppointmentID, &t.TreatmentType,
		&t.ToothNumber, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = TreatmentStatus(status)
	return &t, nil
}

func (r *storePG) GetTreatment(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, `SELECT `+treatmentCols+` FROM treatment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get treatment %s: %w", id, err)
	}
	return t, nil
}

func (r *storePG) ListTreatmentsMissingToothLink(ctx context.Context, patientID *uuid.UUID) ([]*Treatment, error) {
	q := `SELECT ` + treatmentCols + ` FROM treatment WHERE tooth_number IS NULL`
	var args []interface{}
	if patientID != nil {
		q += ` AND patient_id = $1`
		args = append(args, *patientID)
	}
	q += ` ORDER BY created_at`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list unlinked treatments: %w", err)
	}
	defer rows.Close()
	var items []*Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *storePG) UpdateTreatmentToothNumber(ctx context.Context, treatmentID uuid.UUID, toothNumber string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatment SET tooth_number = $2, updated_at = NOW()
		WHERE id = $1 AND tooth_number IS NULL`, treatmentID, toothNumber)
	if err != nil {
		return fmt.Errorf("update treatment %s tooth: %w", treatmentID, err)
	}
	return nil
}

// =========== Appointment teeth ===========

func (r *storePG) InsertAppointmentToothLinkIgnoringConflict(ctx context.Context, link *AppointmentToothLink) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment_teeth (appointment_id, tooth_number, tooth_diagnosis_id, diagnosis)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (appointment_id, tooth_number) DO NOTHING`,
		link.AppointmentID, link.ToothNumber, link.ToothDiagnosisID, link.Diagnosis)
	if err != nil {
		return fmt.Errorf("insert appointment tooth link: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
