package toothchart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrTreatmentNotCompleted is returned when a completion is reported for a
// treatment the store does not have as completed.
var ErrTreatmentNotCompleted = errors.New("treatment is not completed")

// ErrInvalidInput wraps missing or malformed diagnosis fields.
var ErrInvalidInput = errors.New("invalid input")

// Completion no-op reasons reported by CompleteTreatment.
const (
	ReasonToothless      = "treatment type has no tooth"
	ReasonNoDiagnosis    = "no diagnosis recorded for tooth"
	ReasonNotClassifying = "treatment type does not classify"
)

// DiagnosisInput is what clinical staff record for one tooth at consult time.
type DiagnosisInput struct {
	PatientID            uuid.UUID  `json:"patient_id" validate:"required"`
	ConsultationID       *uuid.UUID `json:"consultation_id,omitempty"`
	ToothNumber          string     `json:"tooth_number" validate:"required,fdi"`
	Status               string     `json:"status" validate:"required"`
	PrimaryDiagnosis     string     `json:"primary_diagnosis"`
	RecommendedTreatment string     `json:"recommended_treatment"`
}

// CompletionResult describes what a treatment completion did to the chart.
type CompletionResult struct {
	TreatmentID uuid.UUID       `json:"treatment_id"`
	ToothNumber string          `json:"tooth_number,omitempty"`
	Changed     bool            `json:"changed"`
	Reason      string          `json:"reason,omitempty"`
	Diagnosis   *ToothDiagnosis `json:"diagnosis,omitempty"`
}

// LinkageReport summarizes one linkage repair sweep.
type LinkageReport struct {
	Scanned    int             `json:"scanned"`
	Linked     int             `json:"linked"`
	Reconciled int             `json:"reconciled"`
	Results    []LinkageResult `json:"results"`
	Failures   []RecordFailure `json:"failures,omitempty"`
}

// Service drives the engine against a Store.
type Service struct {
	store      Store
	reconciler *Reconciler
	linker     *Linker
	auditor    *Auditor
	palette    Palette
	logger     zerolog.Logger
}

// NewService wires the engine with the default vocabulary. now may be nil.
func NewService(store Store, logger zerolog.Logger, now func() time.Time) *Service {
	palette := DefaultPalette()
	classifier := NewClassifier(DefaultRules())
	return &Service{
		store:      store,
		reconciler: NewReconciler(palette, classifier, now),
		linker:     NewLinker(classifier),
		auditor:    NewAuditor(palette, classifier, now),
		palette:    palette,
		logger:     logger.With().Str("component", "toothchart").Logger(),
	}
}

// RecordDiagnosis applies a clinician's diagnosis to the tooth. The latest
// record is updated in place unless the input belongs to a different
// consultation, which opens a new diagnosis episode.
func (s *Service) RecordDiagnosis(ctx context.Context, in DiagnosisInput) (*ToothDiagnosis, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if in.ToothNumber == "" {
		return nil, fmt.Errorf("%w: tooth_number is required", ErrInvalidInput)
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetLatestDiagnosis(ctx, in.PatientID, in.ToothNumber)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if current == nil || newEpisode(current, in.ConsultationID) {
		current = &ToothDiagnosis{
			ID:             uuid.New(),
			PatientID:      in.PatientID,
			ConsultationID: in.ConsultationID,
			ToothNumber:    in.ToothNumber,
		}
	}

	next, _ := s.reconciler.Reconcile(*current, NewDiagnosis{
		Status:               status,
		PrimaryDiagnosis:     in.PrimaryDiagnosis,
		RecommendedTreatment: in.RecommendedTreatment,
	})
	if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	if err := s.store.UpsertDiagnosis(ctx, &next); err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("patient_id", next.PatientID.String()).
		Str("tooth", next.ToothNumber).
		Str("status", string(next.Status)).
		Msg("diagnosis recorded")
	return &next, nil
}

func newEpisode(current *ToothDiagnosis, consultationID *uuid.UUID) bool {
	if consultationID == nil {
		return false
	}
	return current.ConsultationID == nil || *current.ConsultationID != *consultationID
}

// CompleteTreatment reconciles a completed treatment into the chart. A
// treatment without a tooth is first put through linkage repair for its
// patient; if it still has no tooth, or its type does not classify, the
// call is a no-op and the reason is reported.
func (s *Service) CompleteTreatment(ctx context.Context, treatmentID uuid.UUID) (*CompletionResult, error) {
	t, err := s.store.GetTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	if t.Status != TreatmentStatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrTreatmentNotCompleted, t.ID, t.Status)
	}
	res := &CompletionResult{TreatmentID: t.ID}

	if t.ToothNumber == nil {
		if IsToothless(t.TreatmentType) {
			res.Reason = ReasonToothless
			return res, nil
		}
		// The sweep reconciles completed treatments it links.
		report, err := s.RunLinkageRepair(ctx, &t.PatientID)
		if err != nil {
			return nil, err
		}
		for _, r := range report.Results {
			if r.TreatmentID != t.ID {
				continue
			}
			if !r.Linked {
				res.Reason = r.Reason
				return res, nil
			}
			res.ToothNumber = r.ToothNumber
		}
		for _, f := range report.Failures {
			if f.ID == t.ID {
				return nil, fmt.Errorf("link treatment %s: %s", t.ID, f.Error)
			}
		}
		if res.ToothNumber == "" {
			res.Reason = ReasonNoMatchingTooth
			return res, nil
		}
		latest, err := s.store.GetLatestDiagnosis(ctx, t.PatientID, res.ToothNumber)
		if err != nil {
			return nil, err
		}
		res.Changed = true
		res.Diagnosis = latest
		return res, nil
	}

	res.ToothNumber = *t.ToothNumber
	next, changed, err := s.applyCompletion(ctx, t.PatientID, *t.ToothNumber, t.TreatmentType)
	if err != nil {
		return nil, err
	}
	res.Changed = changed
	res.Diagnosis = next
	switch {
	case next == nil:
		res.Reason = ReasonNoDiagnosis
	case !changed:
		res.Reason = ReasonNotClassifying
	}
	return res, nil
}

// applyCompletion returns a nil diagnosis when the tooth has no record yet.
func (s *Service) applyCompletion(ctx context.Context, patientID uuid.UUID, tooth, treatmentType string) (*ToothDiagnosis, bool, error) {
	current, err := s.store.GetLatestDiagnosis(ctx, patientID, tooth)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	next, changed := s.reconciler.Reconcile(*current, TreatmentCompleted{TreatmentType: treatmentType})
	if !changed {
		return current, false, nil
	}
	if err := s.store.UpsertDiagnosis(ctx, &next); err != nil {
		return nil, false, err
	}
	return &next, true, nil
}

// RunLinkageRepair backfills tooth numbers on treatments that lack them,
// records appointment tooth links, and reconciles the tooth for treatments
// already completed. One failing treatment never aborts the sweep.
func (s *Service) RunLinkageRepair(ctx context.Context, patientID *uuid.UUID) (*LinkageReport, error) {
	treatments, err := s.store.ListTreatmentsMissingToothLink(ctx, patientID)
	if err != nil {
		return nil, err
	}

	type key struct{ consultation, patient uuid.UUID }
	loaded := make(map[key]error)
	var diagnoses []*ToothDiagnosis
	for _, t := range treatments {
		if t.ConsultationID == nil {
			continue
		}
		k := key{*t.ConsultationID, t.PatientID}
		if _, ok := loaded[k]; ok {
			continue
		}
		ds, err := s.store.ListDiagnosesByConsultation(ctx, k.consultation, k.patient)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		loaded[k] = err
		diagnoses = append(diagnoses, ds...)
	}

	report := &LinkageReport{Scanned: len(treatments), Results: []LinkageResult{}}
	failed := make(map[uuid.UUID]bool)
	for _, t := range treatments {
		if t.ConsultationID == nil {
			continue
		}
		if err := loaded[key{*t.ConsultationID, t.PatientID}]; err != nil {
			failed[t.ID] = true
			report.Failures = append(report.Failures, RecordFailure{ID: t.ID, Error: err.Error()})
		}
	}

	for _, res := range s.linker.RepairLinkages(treatments, diagnoses) {
		if failed[res.TreatmentID] {
			continue
		}
		if !res.Linked {
			report.Results = append(report.Results, res)
			continue
		}
		if err := s.persistLinkage(ctx, res); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("treatment_id", res.TreatmentID.String()).Msg("linkage repair failed")
			report.Failures = append(report.Failures, RecordFailure{ID: res.TreatmentID, Error: err.Error()})
			continue
		}
		report.Linked++
		report.Results = append(report.Results, res)

		if !res.Completed {
			continue
		}
		_, changed, err := s.applyCompletion(ctx, res.PatientID, res.ToothNumber, res.TreatmentType)
		if err != nil {
			s.logger.Warn().Err(err).Str("treatment_id", res.TreatmentID.String()).Msg("reconcile after linkage failed")
			report.Failures = append(report.Failures, RecordFailure{ID: res.TreatmentID, Error: err.Error()})
			continue
		}
		if changed {
			report.Reconciled++
		}
	}

	s.logger.Info().
		Int("scanned", report.Scanned).
		Int("linked", report.Linked).
		Int("reconciled", report.Reconciled).
		Int("failures", len(report.Failures)).
		Msg("linkage repair finished")
	return report, nil
}

func (s *Service) persistLinkage(ctx context.Context, res LinkageResult) error {
	if err := s.store.UpdateTreatmentToothNumber(ctx, res.TreatmentID, res.ToothNumber); err != nil {
		return err
	}
	if res.Link != nil {
		if err := s.store.InsertAppointmentToothLinkIgnoringConflict(ctx, res.Link); err != nil {
			return err
		}
	}
	return nil
}

// RunAudit repairs color drift and reports status mismatches. Only records in
// report.Fixed that were written successfully count as color fixes.
func (s *Service) RunAudit(ctx context.Context, filter DiagnosisFilter) (*AuditReport, error) {
	diagnoses, err := s.store.ListAllDiagnoses(ctx, filter)
	if err != nil {
		return nil, err
	}
	report := s.auditor.AuditAndFix(diagnoses)

	var persisted []ToothDiagnosis
	for i := range report.Fixed {
		d := report.Fixed[i]
		if err := s.store.UpsertDiagnosis(ctx, &d); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("diagnosis_id", d.ID.String()).Msg("color fix failed")
			report.Failures = append(report.Failures, RecordFailure{ID: d.ID, Error: err.Error()})
			continue
		}
		persisted = append(persisted, d)
	}
	report.Fixed = persisted
	report.ColorFixes = len(persisted)

	s.logger.Info().
		Int("scanned", report.Scanned).
		Int("color_fixes", report.ColorFixes).
		Int("mismatches", len(report.TreatmentMismatches)).
		Int("failures", len(report.Failures)).
		Msg("tooth chart audit finished")
	return &report, nil
}

// PatientChart returns the current record for every charted tooth.
func (s *Service) PatientChart(ctx context.Context, patientID uuid.UUID) ([]*ToothDiagnosis, error) {
	return s.store.ListLatestDiagnosesByPatient(ctx, patientID)
}

// Palette exposes the color table for legend rendering.
func (s *Service) Palette() Palette {
	return s.palette
}
