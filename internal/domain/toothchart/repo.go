package toothchart

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Store lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary of the engine. Each method is a single
// statement; callers get row-level atomicity and nothing more.
type Store interface {
	// GetLatestDiagnosis returns the most recently updated record for the
	// tooth, or ErrNotFound.
	GetLatestDiagnosis(ctx context.Context, patientID uuid.UUID, toothNumber string) (*ToothDiagnosis, error)
	// UpsertDiagnosis inserts d or updates the row with the same id. An update
	// older than the stored updated_at is dropped.
	UpsertDiagnosis(ctx context.Context, d *ToothDiagnosis) error
	ListTreatmentsMissingToothLink(ctx context.Context, patientID *uuid.UUID) ([]*Treatment, error)
	// ListDiagnosesByConsultation orders by updated_at descending.
	ListDiagnosesByConsultation(ctx context.Context, consultationID, patientID uuid.UUID) ([]*ToothDiagnosis, error)
	// UpdateTreatmentToothNumber sets the tooth only if it is still null.
	UpdateTreatmentToothNumber(ctx context.Context, treatmentID uuid.UUID, toothNumber string) error
	InsertAppointmentToothLinkIgnoringConflict(ctx context.Context, link *AppointmentToothLink) error
	ListAllDiagnoses(ctx context.Context, filter DiagnosisFilter) ([]*ToothDiagnosis, error)

	GetTreatment(ctx context.Context, id uuid.UUID) (*Treatment, error)
	// ListLatestDiagnosesByPatient returns one record per tooth, the newest.
	ListLatestDiagnosesByPatient(ctx context.Context, patientID uuid.UUID) ([]*ToothDiagnosis, error)
}
