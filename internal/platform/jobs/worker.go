package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/endoflow/endoflow/internal/domain/toothchart"
)

// Maintenance is the part of toothchart.Service the worker drives.
type Maintenance interface {
	RunLinkageRepair(ctx context.Context, patientID *uuid.UUID) (*toothchart.LinkageReport, error)
	RunAudit(ctx context.Context, filter toothchart.DiagnosisFilter) (*toothchart.AuditReport, error)
}

// ScopeFunc runs fn against one clinic's data. See db.WithClinic.
type ScopeFunc func(ctx context.Context, clinicID string, fn func(ctx context.Context) error) error

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	svc    Maintenance
	scope  ScopeFunc
	logger zerolog.Logger
}

func NewWorker(redisURL, queue string, concurrency int, svc Maintenance, scope ScopeFunc, logger zerolog.Logger) (*Worker, error) {
	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	logger = logger.With().Str("component", "jobs").Logger()
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueOrDefault(queue): 1},
		Logger:      asynqLogger{logger},
	})

	w := newWorker(svc, scope, logger)
	w.server = server
	return w, nil
}

func newWorker(svc Maintenance, scope ScopeFunc, logger zerolog.Logger) *Worker {
	w := &Worker{mux: asynq.NewServeMux(), svc: svc, scope: scope, logger: logger}
	w.mux.HandleFunc(TaskLinkageRepair, w.handleLinkageRepair)
	w.mux.HandleFunc(TaskAudit, w.handleAudit)
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start job worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func (w *Worker) handleLinkageRepair(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMaintenancePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return w.scope(ctx, payload.ClinicID, func(ctx context.Context) error {
		report, err := w.svc.RunLinkageRepair(ctx, payload.PatientID)
		if err != nil {
			return err
		}
		w.logger.Info().
			Str("clinic_id", payload.ClinicID).
			Int("linked", report.Linked).
			Int("failures", len(report.Failures)).
			Msg("scheduled linkage repair done")
		return nil
	})
}

func (w *Worker) handleAudit(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMaintenancePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	filter := toothchart.DiagnosisFilter{PatientID: payload.PatientID}
	if payload.Status != "" {
		status, err := toothchart.ParseStatus(payload.Status)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		filter.Status = status
	}
	return w.scope(ctx, payload.ClinicID, func(ctx context.Context) error {
		report, err := w.svc.RunAudit(ctx, filter)
		if err != nil {
			return err
		}
		w.logger.Info().
			Str("clinic_id", payload.ClinicID).
			Int("color_fixes", report.ColorFixes).
			Int("mismatches", len(report.TreatmentMismatches)).
			Msg("scheduled audit done")
		return nil
	})
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
