package assessment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cna/cna/internal/platform/worker"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/assessments", h.CreateAssessment)
}

// CreateAssessment accepts either {patient_data, model_series} or, for
// backward compatibility, a bare patient record at the top level with an
// optional legacy selected_model key.
func (h *Handler) CreateAssessment(c echo.Context) error {
	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}

	patientData, series := unwrapRequest(body)
	result, err := h.svc.Assess(c.Request().Context(), patientData, series)
	if errors.Is(err, ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidInput.Error())
	}
	if err != nil {
		return writeAssessmentError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func unwrapRequest(body map[string]any) (map[string]any, string) {
	series, _ := body["model_series"].(string)
	if series == "" {
		series, _ = body["selected_model"].(string)
	}
	if pd, ok := body["patient_data"].(map[string]any); ok {
		return pd, series
	}
	return body, series
}

func writeAssessmentError(c echo.Context, err error) error {
	we, ok := worker.AsError(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "error during assessment",
			"details": err.Error(),
		})
	}
	switch we.Kind {
	case worker.KindFailed:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":     "error during assessment",
			"details":   we.Stderr,
			"exit_code": we.ExitCode,
		})
	case worker.KindMalformedOutput:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "failed to parse assessment report",
			"details": string(we.RawOutput),
		})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "assessment worker unavailable",
			"details": we.Error(),
		})
	}
}
