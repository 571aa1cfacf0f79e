package toothchart

import (
	"testing"

	"github.com/google/uuid"
)

func newTestAuditor() *Auditor {
	return NewAuditor(DefaultPalette(), NewClassifier(DefaultRules()), fixedClock(t1))
}

func diag(status Status, color Color, recommended string) *ToothDiagnosis {
	return &ToothDiagnosis{
		ID: uuid.New(), PatientID: uuid.New(), ToothNumber: "21",
		Status: status, ColorCode: color, RecommendedTreatment: recommended, UpdatedAt: t0,
	}
}

func TestAuditAndFix_RepairsColorDrift(t *testing.T) {
	a := newTestAuditor()
	drifted := diag(StatusFilled, "#ff00ff", "")
	clean := diag(StatusHealthy, "#22c55e", "")

	report := a.AuditAndFix([]*ToothDiagnosis{drifted, clean})
	if report.Scanned != 2 || report.ColorFixes != 1 || len(report.Fixed) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	fixed := report.Fixed[0]
	if fixed.ID != drifted.ID || fixed.ColorCode != "#3b82f6" || !fixed.UpdatedAt.Equal(t1) {
		t.Errorf("unexpected fix %+v", fixed)
	}
	if fixed.Status != StatusFilled {
		t.Error("audit must never rewrite status")
	}
	if drifted.ColorCode != "#ff00ff" {
		t.Error("input must not be mutated")
	}
}

func TestAuditAndFix_ColorComparisonIsExact(t *testing.T) {
	a := newTestAuditor()
	report := a.AuditAndFix([]*ToothDiagnosis{diag(StatusFilled, "#3B82F6", "")})
	if report.ColorFixes != 1 {
		t.Errorf("upper-case hex is not canonical, expected a fix, got %+v", report)
	}
}

func TestAuditAndFix_ReportsMismatchWithoutChangingStatus(t *testing.T) {
	a := newTestAuditor()
	d := diag(StatusCrown, "#eab308", "Composite filling")

	report := a.AuditAndFix([]*ToothDiagnosis{d})
	if len(report.TreatmentMismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %+v", report.TreatmentMismatches)
	}
	m := report.TreatmentMismatches[0]
	if m.RecordedStatus != StatusCrown || m.SuggestedStatus != StatusFilled || m.DiagnosisID != d.ID {
		t.Errorf("unexpected mismatch %+v", m)
	}
	if len(report.Fixed) != 0 {
		t.Error("a mismatch alone must not produce a write")
	}
}

func TestAuditAndFix_UnclassifiedRecommendationIsNotAMismatch(t *testing.T) {
	a := newTestAuditor()
	report := a.AuditAndFix([]*ToothDiagnosis{diag(StatusCaries, "#ef4444", "Review in six months")})
	if len(report.TreatmentMismatches) != 0 {
		t.Errorf("unexpected mismatches %+v", report.TreatmentMismatches)
	}
	if report.TreatmentMismatches == nil {
		t.Error("mismatch list should be empty, not nil")
	}
}

func TestAuditAndFix_UnknownStatusIsAFailure(t *testing.T) {
	a := newTestAuditor()
	bad := diag("purple", "#000000", "")
	report := a.AuditAndFix([]*ToothDiagnosis{bad, diag(StatusFilled, "#000000", "")})

	if len(report.Failures) != 1 || report.Failures[0].ID != bad.ID {
		t.Fatalf("expected failure for %s, got %+v", bad.ID, report.Failures)
	}
	if report.Scanned != 2 || report.ColorFixes != 1 {
		t.Errorf("sweep should continue past the bad record, got %+v", report)
	}
}

func TestAuditAndFix_Idempotent(t *testing.T) {
	a := newTestAuditor()
	input := []*ToothDiagnosis{
		diag(StatusFilled, "#ff00ff", ""),
		diag(StatusCrown, "#eab308", "Composite filling"),
		diag(StatusRootCanal, "#8b5cf6", "RCT"),
	}

	first := a.AuditAndFix(input)
	applied := make([]*ToothDiagnosis, len(input))
	copy(applied, input)
	for i := range first.Fixed {
		fixed := first.Fixed[i]
		for j, d := range applied {
			if d.ID == fixed.ID {
				applied[j] = &fixed
			}
		}
	}

	second := a.AuditAndFix(applied)
	if second.ColorFixes != 0 || len(second.Fixed) != 0 {
		t.Errorf("second pass should fix nothing, got %+v", second)
	}
	if len(second.TreatmentMismatches) != len(first.TreatmentMismatches) {
		t.Errorf("mismatch report should be stable: %d vs %d",
			len(first.TreatmentMismatches), len(second.TreatmentMismatches))
	}
}
