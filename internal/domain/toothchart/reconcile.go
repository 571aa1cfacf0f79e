package toothchart

import "time"

// Signal is an observed change that may move a tooth to a new status.
// It is implemented by NewDiagnosis and TreatmentCompleted only.
type Signal interface {
	isSignal()
}

// NewDiagnosis is recorded by clinical staff at consult time. Its status is
// authoritative and always replaces whatever the record held.
type NewDiagnosis struct {
	Status               Status
	PrimaryDiagnosis     string
	RecommendedTreatment string
}

// TreatmentCompleted is raised when a treatment for the tooth transitions to
// completed. It moves the tooth only if the treatment type classifies.
type TreatmentCompleted struct {
	TreatmentType string
}

func (NewDiagnosis) isSignal()       {}
func (TreatmentCompleted) isSignal() {}

// Reconciler merges signals into the current diagnosis record of a tooth.
type Reconciler struct {
	palette    Palette
	classifier *Classifier
	now        func() time.Time
}

// NewReconciler builds a Reconciler. now may be nil, in which case the wall
// clock in UTC is used.
func NewReconciler(palette Palette, classifier *Classifier, now func() time.Time) *Reconciler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{palette: palette, classifier: classifier, now: now}
}

// Reconcile returns the next state of current after applying sig and whether
// anything changed. current is passed by value and the result is a fresh
// copy. An unclassifiable TreatmentCompleted returns
// current untouched, including UpdatedAt, with changed=false.
//
// NewDiagnosis.Status must already be a validated status.
func (r *Reconciler) Reconcile(current ToothDiagnosis, sig Signal) (next ToothDiagnosis, changed bool) {
	next = current
	switch s := sig.(type) {
	case NewDiagnosis:
		next.Status = s.Status
		next.ColorCode = r.palette.CanonicalColor(s.Status)
		next.PrimaryDiagnosis = s.PrimaryDiagnosis
		next.RecommendedTreatment = s.RecommendedTreatment
		next.FollowUpRequired = s.Status != StatusHealthy
		next.UpdatedAt = r.now()
		return next, true
	case TreatmentCompleted:
		status, ok := r.classifier.Classify(s.TreatmentType)
		if !ok {
			return current, false
		}
		next.Status = status
		next.ColorCode = r.palette.CanonicalColor(status)
		next.FollowUpRequired = false
		next.UpdatedAt = r.now()
		return next, true
	default:
		return current, false
	}
}
