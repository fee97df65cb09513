package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cna/cna/internal/domain/recognition"
	"github.com/cna/cna/internal/platform/worker"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/assessments/documents", h.AssessDocuments)
}

// AssessDocuments accepts a multipart form with a "patientData" JSON field,
// optional "image_*" document files, and an optional "model_series" value.
func (h *Handler) AssessDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request is not valid multipart form data")
	}

	raw := c.FormValue("patientData")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientData field is required")
	}
	var patientData map[string]any
	if err := json.Unmarshal([]byte(raw), &patientData); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patientData is not valid JSON")
	}

	var docs []recognition.Document
	var fields []string
	for field := range form.File {
		if strings.HasPrefix(field, "image_") {
			fields = append(fields, field)
		}
	}
	recognition.SortDocumentFields(fields)
	for _, field := range fields {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			docs = append(docs, recognition.Document{Name: fh.Filename, Content: content})
		}
	}

	outcome, err := h.svc.AssessDocuments(c.Request().Context(), patientData, docs, c.FormValue("model_series"))
	if errors.Is(err, ErrMissingPatientData) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return writePipelineError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func writePipelineError(c echo.Context, err error) error {
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
