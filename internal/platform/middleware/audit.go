package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/endoflow/endoflow/internal/platform/auth"
)

// AuditEntry records one access to patient chart data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	ClinicID   string
	PatientID  string
	Action     string
	Method     string
	Route      string
	StatusCode int
	RequestID  string
	RemoteIP   string
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 call with the caller and, when the route names
// one, the patient whose chart was touched.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
				PatientID:  patientIDOf(c),
				Action:     actionOf(req.Method),
				Method:     req.Method,
				Route:      c.Path(),
				StatusCode: status,
				RemoteIP:   c.RealIP(),
				Timestamp:  time.Now().UTC(),
			}
			entry.ClinicID, _ = c.Get("clinic_id").(string)
			entry.RequestID, _ = c.Get("request_id").(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "chart_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("clinic_id", entry.ClinicID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Int("status", entry.StatusCode).
				Msg("chart_access")

			return err
		}
	}
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func patientIDOf(c echo.Context) string {
	for _, candidate := range []string{c.Param("patient_id"), c.QueryParam("patient_id")} {
		if _, err := uuid.Parse(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
