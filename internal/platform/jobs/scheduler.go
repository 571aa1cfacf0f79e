package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Schedule lists the cron specs for each pass. An empty spec disables it.
type Schedule struct {
	ClinicID          string
	LinkageRepairCron string
	AuditCron         string
}

type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    zerolog.Logger
}

func NewScheduler(redisURL, queue string, sched Schedule, logger zerolog.Logger) (*Scheduler, error) {
	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "jobs.scheduler").Logger()
	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})

	entries, err := cronEntries(sched)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		id, err := s.Register(entry.spec, entry.task, taskOptions(queueOrDefault(queue))...)
		if err != nil {
			return nil, fmt.Errorf("register %s (%s): %w", entry.task.Type(), entry.spec, err)
		}
		logger.Info().Str("entry_id", id).Str("task", entry.task.Type()).Str("cron", entry.spec).Msg("maintenance pass scheduled")
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

type cronEntry struct {
	spec string
	task *asynq.Task
}

func cronEntries(sched Schedule) ([]cronEntry, error) {
	payload := MaintenancePayload{ClinicID: sched.ClinicID}
	var entries []cronEntry
	if sched.LinkageRepairCron != "" {
		task, err := NewLinkageRepairTask(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, cronEntry{sched.LinkageRepairCron, task})
	}
	if sched.AuditCron != "" {
		task, err := NewAuditTask(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, cronEntry{sched.AuditCron, task})
	}
	return entries, nil
}

// Run enqueues scheduled passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	s.scheduler.Shutdown()
	return nil
}
