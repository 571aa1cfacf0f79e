package toothchart

import "github.com/google/uuid"

// linkableFamilies are the classifier outcomes that identify a procedure
// precisely enough to pin it to a recommended treatment on one tooth.
var linkableFamilies = map[Status]bool{
	StatusRootCanal: true,
	StatusFilled:    true,
	StatusCrown:     true,
	StatusMissing:   true,
	StatusImplant:   true,
}

// Unlinked reasons reported by RepairLinkages.
const (
	ReasonNoConsultation  = "treatment has no consultation"
	ReasonUnclassifiable  = "treatment type does not classify to a tooth procedure"
	ReasonNoCandidates    = "no diagnosis records for consultation"
	ReasonNoMatchingTooth = "no diagnosis recommends a matching treatment"
)

// LinkageResult is the outcome of linkage repair for one treatment.
type LinkageResult struct {
	TreatmentID uuid.UUID `json:"treatment_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	Linked      bool      `json:"linked"`
	ToothNumber string    `json:"tooth_number,omitempty"`
	// DiagnosisID is the record the tooth was inferred from.
	DiagnosisID *uuid.UUID `json:"diagnosis_id,omitempty"`
	// Link is set when the treatment has an appointment to attach the tooth to.
	Link   *AppointmentToothLink `json:"link,omitempty"`
	Reason string                `json:"reason,omitempty"`

	// Completed mirrors the treatment status so the caller can reconcile the
	// tooth right after backfilling.
	Completed     bool   `json:"completed"`
	TreatmentType string `json:"treatment_type"`
}

// Linker infers the tooth a treatment addresses from the diagnoses recorded
// in the same consultation.
type Linker struct {
	classifier *Classifier
}

func NewLinker(classifier *Classifier) *Linker {
	return &Linker{classifier: classifier}
}

// RepairLinkages proposes tooth numbers for treatments that lack one. It is a
// pure function of its input: treatments that already carry a tooth and
// toothless visit types produce no result, so rerunning it over repaired data
// yields nothing new. When several diagnoses match, the first in diagnoses
// order wins.
func (l *Linker) RepairLinkages(treatments []*Treatment, diagnoses []*ToothDiagnosis) []LinkageResult {
	type key struct{ consultation, patient uuid.UUID }
	byConsultation := make(map[key][]*ToothDiagnosis)
	for _, d := range diagnoses {
		if d == nil || d.ConsultationID == nil {
			continue
		}
		k := key{*d.ConsultationID, d.PatientID}
		byConsultation[k] = append(byConsultation[k], d)
	}

	var results []LinkageResult
	for _, t := range treatments {
		if t == nil || t.ToothNumber != nil || IsToothless(t.TreatmentType) {
			continue
		}
		res := LinkageResult{
			TreatmentID:   t.ID,
			PatientID:     t.PatientID,
			Completed:     t.Status == TreatmentStatusCompleted,
			TreatmentType: t.TreatmentType,
		}
		if t.ConsultationID == nil {
			res.Reason = ReasonNoConsultation
			results = append(results, res)
			continue
		}
		family, ok := l.classifier.Classify(t.TreatmentType)
		if !ok || !linkableFamilies[family] {
			res.Reason = ReasonUnclassifiable
			results = append(results, res)
			continue
		}
		candidates := byConsultation[key{*t.ConsultationID, t.PatientID}]
		if len(candidates) == 0 {
			res.Reason = ReasonNoCandidates
			results = append(results, res)
			continue
		}
		match := l.firstMatch(family, candidates)
		if match == nil {
			res.Reason = ReasonNoMatchingTooth
			results = append(results, res)
			continue
		}

		id := match.ID
		res.Linked = true
		res.ToothNumber = match.ToothNumber
		res.DiagnosisID = &id
		if t.AppointmentID != nil {
			snapshot := match.PrimaryDiagnosis
			if snapshot == "" {
				snapshot = match.RecommendedTreatment
			}
			res.Link = &AppointmentToothLink{
				AppointmentID:    *t.AppointmentID,
				ToothNumber:      match.ToothNumber,
				ToothDiagnosisID: &id,
				Diagnosis:        snapshot,
			}
		}
		results = append(results, res)
	}
	return results
}

func (l *Linker) firstMatch(family Status, candidates []*ToothDiagnosis) *ToothDiagnosis {
	for _, d := range candidates {
		if l.classifier.Matches(d.RecommendedTreatment, family) {
			return d
		}
	}
	return nil
}
