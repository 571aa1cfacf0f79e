package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/endoflow/endoflow/internal/config"
	"github.com/endoflow/endoflow/internal/domain/toothchart"
	"github.com/endoflow/endoflow/internal/platform/db"
	"github.com/endoflow/endoflow/internal/platform/jobs"
)

var errRedisRequired = errors.New("REDIS_URL is required for queued maintenance")

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run tooth chart maintenance passes for one clinic",
	}
	cmd.PersistentFlags().String("clinic", "", "Clinic identifier (defaults to DEFAULT_CLINIC)")
	cmd.PersistentFlags().String("patient", "", "Restrict the pass to one patient ID")
	cmd.PersistentFlags().Bool("enqueue", false, "Queue the pass for the job worker instead of running it here")

	linkage := &cobra.Command{
		Use:   "linkage",
		Short: "Backfill tooth numbers on treatments booked without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := maintenancePayload(cmd)
			if err != nil {
				return err
			}
			return runMaintenance(cmd, payload, jobs.TaskLinkageRepair)
		},
	}

	audit := &cobra.Command{
		Use:   "audit",
		Short: "Repair drifted tooth colors and report status mismatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := maintenancePayload(cmd)
			if err != nil {
				return err
			}
			return runMaintenance(cmd, payload, jobs.TaskAudit)
		},
	}
	audit.Flags().String("status", "", "Only audit diagnoses with this status")

	cmd.AddCommand(linkage, audit)
	return cmd
}

// maintenancePayload reads the shared flags. The clinic is resolved later
// against DEFAULT_CLINIC when left empty.
func maintenancePayload(cmd *cobra.Command) (jobs.MaintenancePayload, error) {
	var payload jobs.MaintenancePayload
	payload.ClinicID, _ = cmd.Flags().GetString("clinic")
	if raw, _ := cmd.Flags().GetString("patient"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return payload, fmt.Errorf("invalid --patient %q: %w", raw, err)
		}
		payload.PatientID = &id
	}
	if f := cmd.Flags().Lookup("status"); f != nil && f.Value.String() != "" {
		status, err := toothchart.ParseStatus(f.Value.String())
		if err != nil {
			return payload, err
		}
		payload.Status = string(status)
	}
	return payload, nil
}

func runMaintenance(cmd *cobra.Command, payload jobs.MaintenancePayload, task string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if payload.ClinicID == "" {
		payload.ClinicID = cfg.DefaultClinic
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if enqueue, _ := cmd.Flags().GetBool("enqueue"); enqueue {
		return enqueueMaintenance(ctx, cmd.OutOrStdout(), cfg, payload, task)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newService(pool, logger)
	var report interface{}
	err = db.WithClinic(ctx, pool, payload.ClinicID, func(ctx context.Context) error {
		switch task {
		case jobs.TaskLinkageRepair:
			r, err := svc.RunLinkageRepair(ctx, payload.PatientID)
			report = r
			return err
		default:
			r, err := svc.RunAudit(ctx, toothchart.DiagnosisFilter{
				PatientID: payload.PatientID,
				Status:    toothchart.Status(payload.Status),
			})
			report = r
			return err
		}
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), report)
}

func enqueueMaintenance(ctx context.Context, w io.Writer, cfg *config.Config, payload jobs.MaintenancePayload, task string) error {
	if !cfg.JobsEnabled() {
		return errRedisRequired
	}
	client, err := jobs.NewClient(cfg.RedisURL, cfg.JobsQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	var id string
	if task == jobs.TaskLinkageRepair {
		id, err = client.EnqueueLinkageRepair(ctx, payload)
	} else {
		id, err = client.EnqueueAudit(ctx, payload)
	}
	if errors.Is(err, jobs.ErrAlreadyQueued) {
		fmt.Fprintf(w, "%s already queued for clinic %s\n", task, payload.ClinicID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "queued %s as %s\n", task, id)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
