// Package jobs runs the tooth chart maintenance passes on asynq: a client to
// enqueue them, a worker to execute them, and a cron scheduler.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskLinkageRepair = "toothchart.linkage_repair"
	TaskAudit         = "toothchart.audit"
)

// MaintenancePayload scopes a pass to a clinic and, optionally, one patient.
// Status narrows the audit and is ignored by linkage repair.
type MaintenancePayload struct {
	ClinicID  string     `json:"clinic_id"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Status    string     `json:"status,omitempty"`
}

func NewLinkageRepairTask(payload MaintenancePayload) (*asynq.Task, error) {
	return newTask(TaskLinkageRepair, payload)
}

func NewAuditTask(payload MaintenancePayload) (*asynq.Task, error) {
	return newTask(TaskAudit, payload)
}

func newTask(typename string, payload MaintenancePayload) (*asynq.Task, error) {
	if payload.ClinicID == "" {
		return nil, fmt.Errorf("%s: clinic_id is required", typename)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}

func ParseMaintenancePayload(task *asynq.Task) (MaintenancePayload, error) {
	var payload MaintenancePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MaintenancePayload{}, err
	}
	if payload.ClinicID == "" {
		return MaintenancePayload{}, fmt.Errorf("%s: clinic_id is required", task.Type())
	}
	return payload, nil
}
