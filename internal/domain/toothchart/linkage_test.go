package toothchart

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func ptr[T any](v T) *T { return &v }

type linkFixture struct {
	patient, consultation, appointment uuid.UUID
	diagnoses                          []*ToothDiagnosis
}

func newLinkFixture() linkFixture {
	f := linkFixture{patient: uuid.New(), consultation: uuid.New(), appointment: uuid.New()}
	f.diagnoses = []*ToothDiagnosis{
		{
			ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation),
			ToothNumber: "48", Status: StatusCaries, PrimaryDiagnosis: "Deep caries with pulpitis",
			RecommendedTreatment: "Root canal treatment", UpdatedAt: t1,
		},
		{
			ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation),
			ToothNumber: "16", Status: StatusCaries, RecommendedTreatment: "Composite filling", UpdatedAt: t0,
		},
	}
	return f
}

func TestRepairLinkages_LinksByRecommendedTreatment(t *testing.T) {
	f := newLinkFixture()
	l := NewLinker(NewClassifier(DefaultRules()))
	tr := &Treatment{
		ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation),
		AppointmentID: ptr(f.appointment), TreatmentType: "Root Canal Treatment", Status: TreatmentStatusCompleted,
	}

	results := l.RepairLinkages([]*Treatment{tr}, f.diagnoses)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if !res.Linked || res.ToothNumber != "48" {
		t.Fatalf("expected link to 48, got %+v", res)
	}
	if res.DiagnosisID == nil || *res.DiagnosisID != f.diagnoses[0].ID {
		t.Error("expected diagnosis id of tooth 48")
	}
	if res.Link == nil || res.Link.AppointmentID != f.appointment || res.Link.Diagnosis != "Deep caries with pulpitis" {
		t.Errorf("unexpected link %+v", res.Link)
	}
	if !res.Completed || res.TreatmentType != "Root Canal Treatment" {
		t.Errorf("completion info not carried: %+v", res)
	}
}

func TestRepairLinkages_SnapshotFallsBackToRecommendation(t *testing.T) {
	f := newLinkFixture()
	l := NewLinker(NewClassifier(DefaultRules()))
	tr := &Treatment{
		ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation),
		AppointmentID: ptr(f.appointment), TreatmentType: "Filling",
	}
	res := l.RepairLinkages([]*Treatment{tr}, f.diagnoses)[0]
	if res.ToothNumber != "16" || res.Link.Diagnosis != "Composite filling" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Completed {
		t.Error("scheduled treatment is not completed")
	}
}

func TestRepairLinkages_CompoundPlanLinksEveryFamily(t *testing.T) {
	patient, consultation := uuid.New(), uuid.New()
	diagnoses := []*ToothDiagnosis{{
		ID: uuid.New(), PatientID: patient, ConsultationID: ptr(consultation),
		ToothNumber: "36", Status: StatusCaries, RecommendedTreatment: "Root canal treatment followed by crown",
	}}
	treatments := []*Treatment{
		{ID: uuid.New(), PatientID: patient, ConsultationID: ptr(consultation), TreatmentType: "Root Canal Treatment"},
		{ID: uuid.New(), PatientID: patient, ConsultationID: ptr(consultation), TreatmentType: "PFM Crown"},
	}
	l := NewLinker(NewClassifier(DefaultRules()))

	results := l.RepairLinkages(treatments, diagnoses)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if !res.Linked || res.ToothNumber != "36" {
			t.Errorf("%s: expected link to 36, got %+v", res.TreatmentType, res)
		}
	}
}

func TestRepairLinkages_NoAppointmentNoLink(t *testing.T) {
	f := newLinkFixture()
	l := NewLinker(NewClassifier(DefaultRules()))
	tr := &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "RCT"}
	res := l.RepairLinkages([]*Treatment{tr}, f.diagnoses)[0]
	if !res.Linked || res.Link != nil {
		t.Errorf("expected linked without appointment link, got %+v", res)
	}
}

func TestRepairLinkages_Reasons(t *testing.T) {
	f := newLinkFixture()
	l := NewLinker(NewClassifier(DefaultRules()))
	other := uuid.New()

	tests := []struct {
		name   string
		t      *Treatment
		reason string
	}{
		{"no consultation", &Treatment{ID: uuid.New(), PatientID: f.patient, TreatmentType: "Filling"}, ReasonNoConsultation},
		{"unclassifiable", &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Whitening"}, ReasonUnclassifiable},
		{"not linkable family", &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Scaling"}, ReasonUnclassifiable},
		{"other consultation", &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(other), TreatmentType: "Filling"}, ReasonNoCandidates},
		{"other patient", &Treatment{ID: uuid.New(), PatientID: uuid.New(), ConsultationID: ptr(f.consultation), TreatmentType: "Filling"}, ReasonNoCandidates},
		{"no match", &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Crown"}, ReasonNoMatchingTooth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := l.RepairLinkages([]*Treatment{tt.t}, f.diagnoses)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].Linked || results[0].Reason != tt.reason {
				t.Errorf("expected reason %q, got %+v", tt.reason, results[0])
			}
		})
	}
}

func TestRepairLinkages_SkipsLinkedAndToothless(t *testing.T) {
	f := newLinkFixture()
	l := NewLinker(NewClassifier(DefaultRules()))
	treatments := []*Treatment{
		{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Root canal", ToothNumber: ptr("48")},
		{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Consultation"},
		{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "First Visit"},
	}
	if results := l.RepairLinkages(treatments, f.diagnoses); len(results) != 0 {
		t.Errorf("expected no results, got %+v", results)
	}
}

func TestRepairLinkages_FirstCandidateWins(t *testing.T) {
	f := newLinkFixture()
	f.diagnoses = append([]*ToothDiagnosis{{
		ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation),
		ToothNumber: "37", Status: StatusCaries, RecommendedTreatment: "RCT", UpdatedAt: t1.Add(time.Hour),
	}}, f.diagnoses...)
	l := NewLinker(NewClassifier(DefaultRules()))
	tr := &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Root canal"}

	if res := l.RepairLinkages([]*Treatment{tr}, f.diagnoses)[0]; res.ToothNumber != "37" {
		t.Errorf("expected first candidate 37, got %q", res.ToothNumber)
	}
}

func TestRepairLinkages_Idempotent(t *testing.T) {
	f := newLinkFixture()
	l := NewLinker(NewClassifier(DefaultRules()))
	tr := &Treatment{ID: uuid.New(), PatientID: f.patient, ConsultationID: ptr(f.consultation), TreatmentType: "Root Canal Treatment"}

	first := l.RepairLinkages([]*Treatment{tr}, f.diagnoses)
	if len(first) != 1 || !first[0].Linked {
		t.Fatalf("expected first pass to link, got %+v", first)
	}
	// Apply the result the way the service does, then rerun.
	tr.ToothNumber = ptr(first[0].ToothNumber)
	if again := l.RepairLinkages([]*Treatment{tr}, f.diagnoses); len(again) != 0 {
		t.Errorf("second pass should be empty, got %+v", again)
	}
}
