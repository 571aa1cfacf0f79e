package toothchart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatusEvent is published by scheduling whenever an appointment
// (and the treatment booked on it) changes status.
type AppointmentStatusEvent struct {
	AppointmentID uuid.UUID       `json:"appointment_id"`
	TreatmentID   *uuid.UUID      `json:"treatment_id,omitempty"`
	PatientID     uuid.UUID       `json:"patient_id"`
	Status        TreatmentStatus `json:"status"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// HandleAppointmentEvent reconciles the chart for completion events and
// ignores every other transition. Events the store cannot confirm yet are
// dropped with a warning; only persistence failures are returned.
func (s *Service) HandleAppointmentEvent(ctx context.Context, payload []byte) error {
	var evt AppointmentStatusEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.logger.Warn().Err(err).Msg("discarding malformed appointment event")
		return nil
	}
	if evt.Status != TreatmentStatusCompleted || evt.TreatmentID == nil {
		return nil
	}

	res, err := s.CompleteTreatment(ctx, *evt.TreatmentID)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTreatmentNotCompleted):
		s.logger.Warn().Err(err).
			Str("appointment_id", evt.AppointmentID.String()).
			Str("treatment_id", evt.TreatmentID.String()).
			Msg("skipping appointment completion")
		return nil
	case err != nil:
		return fmt.Errorf("complete treatment %s: %w", *evt.TreatmentID, err)
	}

	s.logger.Info().
		Str("appointment_id", evt.AppointmentID.String()).
		Str("treatment_id", res.TreatmentID.String()).
		Str("tooth", res.ToothNumber).
		Bool("changed", res.Changed).
		Msg("appointment completion reconciled")
	return nil
}
