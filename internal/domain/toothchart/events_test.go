package toothchart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func eventPayload(t *testing.T, evt AppointmentStatusEvent) []byte {
	t.Helper()
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func TestHandleAppointmentEvent_CompletionReconciles(t *testing.T) {
	svc, store := newTestService()
	diagnosis, treatment := tooth48(store)

	err := svc.HandleAppointmentEvent(context.Background(), eventPayload(t, AppointmentStatusEvent{
		AppointmentID: *treatment.AppointmentID,
		TreatmentID:   &treatment.ID,
		PatientID:     treatment.PatientID,
		Status:        TreatmentStatusCompleted,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latest, _ := store.GetLatestDiagnosis(context.Background(), diagnosis.PatientID, "48")
	if latest.Status != StatusRootCanal {
		t.Errorf("expected root_canal, got %s", latest.Status)
	}
}

func TestHandleAppointmentEvent_Ignored(t *testing.T) {
	svc, store := newTestService()
	_, treatment := tooth48(store)
	scheduled := store.addTreatment(Treatment{ID: uuid.New(), PatientID: uuid.New(), TreatmentType: "Filling", Status: TreatmentStatusScheduled})

	payloads := map[string][]byte{
		"malformed":       []byte("{"),
		"not completed":   eventPayload(t, AppointmentStatusEvent{TreatmentID: &treatment.ID, Status: TreatmentStatusCancelled}),
		"no treatment":    eventPayload(t, AppointmentStatusEvent{Status: TreatmentStatusCompleted}),
		"unknown":         eventPayload(t, AppointmentStatusEvent{TreatmentID: ptr(uuid.New()), Status: TreatmentStatusCompleted}),
		"store disagrees": eventPayload(t, AppointmentStatusEvent{TreatmentID: &scheduled.ID, Status: TreatmentStatusCompleted}),
	}
	for name, p := range payloads {
		if err := svc.HandleAppointmentEvent(context.Background(), p); err != nil {
			t.Errorf("%s: expected nil, got %v", name, err)
		}
	}
	if store.treatments[treatment.ID].ToothNumber != nil {
		t.Error("cancelled event must not trigger linkage")
	}
}

func TestHandleAppointmentEvent_PersistenceErrorIsReturned(t *testing.T) {
	svc, store := newTestService()
	diagnosis := store.addDiagnosis(ToothDiagnosis{ID: uuid.New(), PatientID: uuid.New(), ToothNumber: "36", Status: StatusCaries, UpdatedAt: t0})
	tr := store.addTreatment(Treatment{
		ID: uuid.New(), PatientID: diagnosis.PatientID, TreatmentType: "Composite Filling",
		ToothNumber: ptr("36"), Status: TreatmentStatusCompleted,
	})
	store.failUpsert[diagnosis.ID] = errors.New("connection reset")

	err := svc.HandleAppointmentEvent(context.Background(), eventPayload(t, AppointmentStatusEvent{
		TreatmentID: &tr.ID, PatientID: tr.PatientID, Status: TreatmentStatusCompleted,
	}))
	if err == nil {
		t.Fatal("expected error so the event is retried")
	}
}
