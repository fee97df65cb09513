package recognition

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cna/cna/internal/domain/record"
	"github.com/cna/cna/internal/platform/worker"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/recognitions", h.SubmitBatch)
	api.POST("/recognitions/single", h.SubmitSingle)
	api.POST("/recognitions/text", h.SubmitText)
	api.GET("/recognitions/:id", h.GetSession)
	api.POST("/recognitions/:id/jobs/:jobID/retry", h.RetryJob)
	api.POST("/recognitions/:id/integrate", h.IntegrateSession)
	api.DELETE("/recognitions/:id", h.ClearSession)
}

type batchResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Jobs      []*Job    `json:"jobs"`
	Snapshot  Snapshot  `json:"snapshot"`
}

// SubmitBatch accepts a multipart upload ("image_*" fields or repeated
// "files" entries), recognizes every document, and returns per-job outcomes.
func (h *Handler) SubmitBatch(c echo.Context) error {
	docs, err := readUploadedDocuments(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.Submit(c.Request().Context(), docs)
	if errors.Is(err, ErrNoDocuments) {
		return echo.NewHTTPError(http.StatusBadRequest, "no documents uploaded")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Set("session_id", session.ID.String())
	snap, _ := h.svc.tracker.Snapshot(session.ID)
	return c.JSON(http.StatusOK, batchResponse{SessionID: session.ID, Jobs: session.Jobs, Snapshot: snap})
}

type singleResponse struct {
	Success        bool           `json:"success"`
	DocumentType   string         `json:"document_type"`
	ExtractedData  map[string]any `json:"extracted_data"`
	IntegratedData *record.Record `json:"integrated_data"`
}

// SubmitSingle accepts one document under the "image" field and returns its
// unwrapped recognition outcome.
func (h *Handler) SubmitSingle(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no document uploaded under field \"image\"")
	}
	content, err := readFormFile(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.Submit(c.Request().Context(), []Document{{Name: file.Filename, Content: content}})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// The session id is never returned here, so the caller cannot clear it;
	// the request is the session's whole lifetime.
	defer func() {
		if err := h.svc.Clear(session.ID); err != nil {
			h.svc.logger.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to clear single-document session")
		}
	}()
	job := session.Jobs[0]
	if job.Status != StatusSuccess {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "document recognition failed",
			"details": job.Error,
		})
	}
	integrated, _, _ := h.svc.Integrate(session.ID)
	return c.JSON(http.StatusOK, singleResponse{
		Success:        true,
		DocumentType:   job.Result.DocumentType,
		ExtractedData:  job.Result.Data,
		IntegratedData: integrated,
	})
}

type textRequest struct {
	Text string `json:"text"`
}

// SubmitText sends free text through the recognition worker and relays the
// worker's JSON output.
func (h *Handler) SubmitText(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.RecognizeText(c.Request().Context(), req.Text)
	if errors.Is(err, ErrEmptyText) {
		return echo.NewHTTPError(http.StatusBadRequest, "text content is required")
	}
	if err != nil {
		return writeWorkerError(c, err)
	}
	return c.JSONBlob(http.StatusOK, out)
}

type sessionResponse struct {
	Session  *Session `json:"session"`
	Snapshot Snapshot `json:"snapshot"`
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	c.Set("session_id", id.String())
	session, snap, err := h.svc.Session(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sessionResponse{Session: session, Snapshot: snap})
}

func (h *Handler) RetryJob(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	jobID, err := uuid.Parse(c.Param("jobID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}
	c.Set("session_id", sessionID.String())
	job, err := h.svc.Retry(c.Request().Context(), sessionID, jobID)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrJobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	snap, _ := h.svc.tracker.Snapshot(sessionID)
	return c.JSON(http.StatusOK, echo.Map{"job": job, "snapshot": snap})
}

type integrateResponse struct {
	Record      *record.Record `json:"record"`
	SourceCount int            `json:"source_count"`
}

func (h *Handler) IntegrateSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	c.Set("session_id", id.String())
	rec, n, err := h.svc.Integrate(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, integrateResponse{Record: rec, SourceCount: n})
}

func (h *Handler) ClearSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	if err := h.svc.Clear(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// readUploadedDocuments collects multipart files from "image_*" fields and
// the repeated "files" field, preserving form order within each group.
func readUploadedDocuments(c echo.Context) ([]Document, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.New("request is not valid multipart form data")
	}
	var docs []Document
	appendFiles := func(files []*multipart.FileHeader) error {
		for _, fh := range files {
			content, err := readFormFile(fh)
			if err != nil {
				return err
			}
			docs = append(docs, Document{Name: fh.Filename, Content: content})
		}
		return nil
	}
	var fields []string
	for field := range form.File {
		if strings.HasPrefix(field, "image_") || field == "files" {
			fields = append(fields, field)
		}
	}
	// Field iteration order is randomized; sort so submission order is
	// stable and integration stays order-sensitive in a predictable way.
	SortDocumentFields(fields)
	for _, field := range fields {
		if err := appendFiles(form.File[field]); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// SortDocumentFields orders multipart field names by prefix, then by numeric
// suffix, so "image_2" comes before "image_10". Plain lexicographic order
// would swap them and change the submission order that last-writer-wins
// integration depends on.
func SortDocumentFields(fields []string) {
	sort.Slice(fields, func(i, j int) bool {
		pi, ni, oki := splitFieldIndex(fields[i])
		pj, nj, okj := splitFieldIndex(fields[j])
		if pi != pj {
			return pi < pj
		}
		if oki && okj {
			return ni < nj
		}
		return fields[i] < fields[j]
	})
}

// splitFieldIndex splits "image_12" into ("image_", 12, true). Names without
// a trailing number are returned whole.
func splitFieldIndex(name string) (string, int, bool) {
	i := strings.LastIndex(name, "_")
	if i < 0 || i == len(name)-1 {
		return name, 0, false
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return name, 0, false
	}
	return name[:i+1], n, true
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeWorkerError translates an invoker failure into its diagnostic HTTP
// payload.
func writeWorkerError(c echo.Context, err error) error {
	we, ok := worker.AsError(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch we.Kind {
	case worker.KindFailed:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":     "worker failed",
			"details":   we.Stderr,
			"exit_code": we.ExitCode,
		})
	case worker.KindMalformedOutput:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "failed to parse worker output",
			"details": string(we.RawOutput),
		})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "worker unavailable",
			"details": we.Error(),
		})
	}
}
