package toothchart

import (
	"time"

	"github.com/google/uuid"
)

// Mismatch flags a record whose recommended treatment suggests a different
// status than the one recorded. It is advisory and never applied.
type Mismatch struct {
	DiagnosisID          uuid.UUID `json:"diagnosis_id"`
	PatientID            uuid.UUID `json:"patient_id"`
	ToothNumber          string    `json:"tooth_number"`
	RecordedStatus       Status    `json:"recorded_status"`
	SuggestedStatus      Status    `json:"suggested_status"`
	RecommendedTreatment string    `json:"recommended_treatment"`
}

// RecordFailure is a record the pass could not process. The sweep goes on.
type RecordFailure struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// AuditReport summarizes one audit sweep.
type AuditReport struct {
	Scanned             int              `json:"scanned"`
	ColorFixes          int              `json:"color_fixes"`
	Fixed               []ToothDiagnosis `json:"-"`
	TreatmentMismatches []Mismatch       `json:"treatment_mismatches"`
	Failures            []RecordFailure  `json:"failures,omitempty"`
}

// Auditor restores colorCode == canonicalColor(status) and reports status
// disagreements for manual review.
type Auditor struct {
	palette    Palette
	classifier *Classifier
	now        func() time.Time
}

func NewAuditor(palette Palette, classifier *Classifier, now func() time.Time) *Auditor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Auditor{palette: palette, classifier: classifier, now: now}
}

// AuditAndFix inspects diagnoses without touching the slice. Records needing
// a color fix are returned in Fixed with only ColorCode and UpdatedAt
// changed. Status is never rewritten here.
func (a *Auditor) AuditAndFix(diagnoses []*ToothDiagnosis) AuditReport {
	report := AuditReport{TreatmentMismatches: []Mismatch{}}
	for _, d := range diagnoses {
		if d == nil {
			continue
		}
		report.Scanned++
		if !d.Status.Valid() {
			report.Failures = append(report.Failures, RecordFailure{
				ID:    d.ID,
				Error: ErrUnknownStatus.Error() + ": " + string(d.Status),
			})
			continue
		}

		if want := a.palette.CanonicalColor(d.Status); d.ColorCode != want {
			fixed := *d
			fixed.ColorCode = want
			fixed.UpdatedAt = a.now()
			report.Fixed = append(report.Fixed, fixed)
			report.ColorFixes++
		}

		if suggested, ok := a.classifier.Classify(d.RecommendedTreatment); ok && suggested != d.Status {
			report.TreatmentMismatches = append(report.TreatmentMismatches, Mismatch{
				DiagnosisID:          d.ID,
				PatientID:            d.PatientID,
				ToothNumber:          d.ToothNumber,
				RecordedStatus:       d.Status,
				SuggestedStatus:      suggested,
				RecommendedTreatment: d.RecommendedTreatment,
			})
		}
	}
	return report
}
