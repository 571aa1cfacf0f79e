package toothchart

import (
	"time"

	"github.com/google/uuid"
)

// ToothDiagnosis maps to the tooth_diagnosis table. A tooth can collect
// several records over time; the one with the newest UpdatedAt is current.
type ToothDiagnosis struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsultationID       *uuid.UUID `db:"consultation_id" json:"consultation_id,omitempty"`
	ToothNumber          string     `db:"tooth_number" json:"tooth_number"`
	Status               Status     `db:"status" json:"status"`
	ColorCode            Color      `db:"color_code" json:"color_code"`
	PrimaryDiagnosis     string     `db:"primary_diagnosis" json:"primary_diagnosis,omitempty"`
	RecommendedTreatment string     `db:"recommended_treatment" json:"recommended_treatment,omitempty"`
	FollowUpRequired     bool       `db:"follow_up_required" json:"follow_up_required"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// TreatmentStatus is the lifecycle of a treatment, owned by scheduling.
type TreatmentStatus string

const (
	TreatmentStatusScheduled  TreatmentStatus = "scheduled"
	TreatmentStatusInProgress TreatmentStatus = "in_progress"
	TreatmentStatusCompleted  TreatmentStatus = "completed"
	TreatmentStatusCancelled  TreatmentStatus = "cancelled"
)

// Treatment maps to the treatment table. ToothNumber starts nil for
// treatments booked without a tooth and is backfilled once by linkage repair.
type Treatment struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	ConsultationID *uuid.UUID      `db:"consultation_id" json:"consultation_id,omitempty"`
	AppointmentID  *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	TreatmentType  string          `db:"treatment_type" json:"treatment_type"`
	ToothNumber    *string         `db:"tooth_number" json:"tooth_number,omitempty"`
	Status         TreatmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentToothLink maps to the appointment_teeth join table. Rows are
// written once and never updated; Diagnosis is a snapshot taken at link time.
type AppointmentToothLink struct {
	AppointmentID    uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	ToothNumber      string     `db:"tooth_number" json:"tooth_number"`
	ToothDiagnosisID *uuid.UUID `db:"tooth_diagnosis_id" json:"tooth_diagnosis_id,omitempty"`
	Diagnosis        string     `db:"diagnosis" json:"diagnosis,omitempty"`
}

// DiagnosisFilter narrows ListAllDiagnoses. Zero values mean "no filter".
type DiagnosisFilter struct {
	PatientID *uuid.UUID
	Status    Status
}
