package toothchart

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/endoflow/endoflow/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Chart reads – any clinical staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleAssistant))
	readGroup.GET("/patients/:patient_id/tooth-chart", h.GetPatientChart)
	readGroup.GET("/tooth-chart/palette", h.GetPalette)

	// Diagnoses are clinical judgment – dentists only
	dentistGroup := api.Group("", auth.RequireRole(auth.RoleDentist))
	dentistGroup.POST("/tooth-diagnoses", h.RecordDiagnosis)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleAssistant))
	writeGroup.POST("/treatments/:id/complete", h.CompleteTreatment)

	// Maintenance passes – admin
	adminGroup := api.Group("/maintenance", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/linkage-repair", h.RunLinkageRepair)
	adminGroup.POST("/audit", h.RunAudit)
}

func (h *Handler) RecordDiagnosis(c echo.Context) error {
	var in DiagnosisInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.RecordDiagnosis(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) CompleteTreatment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.CompleteTreatment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetPatientChart(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	teeth, err := h.svc.PatientChart(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	if teeth == nil {
		teeth = []*ToothDiagnosis{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": pid,
		"teeth":      teeth,
	})
}

func (h *Handler) GetPalette(c echo.Context) error {
	palette := h.svc.Palette()
	legend := make([]map[string]string, 0, len(Statuses()))
	for _, s := range Statuses() {
		legend = append(legend, map[string]string{
			"status": string(s),
			"color":  string(palette.CanonicalColor(s)),
		})
	}
	return c.JSON(http.StatusOK, legend)
}

func (h *Handler) RunLinkageRepair(c echo.Context) error {
	patientID, err := optionalUUID(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	report, err := h.svc.RunLinkageRepair(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) RunAudit(c echo.Context) error {
	var filter DiagnosisFilter
	patientID, err := optionalUUID(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	filter.PatientID = patientID
	if raw := c.QueryParam("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Status = status
	}
	report, err := h.svc.RunAudit(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownStatus), errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTreatmentNotCompleted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
