package record

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type memRepo struct {
	records map[uuid.UUID]*ArchivedRecord
	reports map[uuid.UUID][]*ArchivedReport
}

func newMemRepo() *memRepo {
	return &memRepo{
		records: make(map[uuid.UUID]*ArchivedRecord),
		reports: make(map[uuid.UUID][]*ArchivedReport),
	}
}

func (m *memRepo) CreateRecord(_ context.Context, r *ArchivedRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.records[r.ID] = r
	return nil
}

func (m *memRepo) GetRecord(_ context.Context, id uuid.UUID) (*ArchivedRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, errors.New("no rows in result set")
	}
	return r, nil
}

func (m *memRepo) ListRecords(_ context.Context, limit, offset int) ([]*ArchivedRecord, int, error) {
	var all []*ArchivedRecord
	for _, r := range m.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memRepo) CreateReport(_ context.Context, rep *ArchivedReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	rep.CreatedAt = time.Now()
	m.reports[rep.RecordID] = append(m.reports[rep.RecordID], rep)
	return nil
}

func (m *memRepo) ListReports(_ context.Context, recordID uuid.UUID) ([]*ArchivedReport, error) {
	return m.reports[recordID], nil
}

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(NewService(newMemRepo()))
	e := echo.New()
	return h, e
}

func TestHandler_CreateRecord(t *testing.T) {
	h, e := newTestHandler()
	body := `{"results":[{"document_type":"人体测量","data":{"身高":"170cm","体重":"65kg"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var ar ArchivedRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &ar); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ar.SourceCount != 1 {
		t.Errorf("expected source_count=1, got %d", ar.SourceCount)
	}
	if ar.Record == nil || ar.Record.PatientInfo.HeightCM == nil || *ar.Record.PatientInfo.HeightCM != 170 {
		t.Errorf("expected integrated height, got %+v", ar.Record)
	}
}

func TestHandler_CreateRecord_Empty(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"results":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateRecord(c)
	if err == nil {
		t.Fatal("expected error for empty results")
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetRecord(t *testing.T) {
	h, e := newTestHandler()
	ar, err := h.svc.Archive(context.Background(), []RecognitionResult{
		{DocumentType: "血常规", Data: map[string]any{"血红蛋白": "110g/L"}},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ar.ID.String())

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetRecord_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetRecord(c); err == nil {
		t.Error("expected error for not found")
	}
}

func TestHandler_ListRecords(t *testing.T) {
	h, e := newTestHandler()
	for i := 0; i < 3; i++ {
		if _, err := h.svc.Archive(context.Background(), []RecognitionResult{
			{DocumentType: "血常规", Data: map[string]any{"血红蛋白": "110g/L"}},
		}); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []json.RawMessage `json:"data"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 2 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", resp.Total, len(resp.Data), resp.HasMore)
	}
}

func TestHandler_ListReports(t *testing.T) {
	h, e := newTestHandler()
	ar, err := h.svc.Archive(context.Background(), []RecognitionResult{
		{DocumentType: "血常规", Data: map[string]any{"血红蛋白": "110g/L"}},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := h.svc.AttachReport(context.Background(), &ArchivedReport{
		RecordID:    ar.ID,
		ModelSeries: "gemini",
		Report:      "营养评估报告",
	}); err != nil {
		t.Fatalf("attach report: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ar.ID.String())

	if err := h.ListReports(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reports []*ArchivedReport
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(reports) != 1 || reports[0].Report != "营养评估报告" {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestService_AttachReport_RequiresText(t *testing.T) {
	svc := NewService(newMemRepo())
	err := svc.AttachReport(context.Background(), &ArchivedReport{RecordID: uuid.New()})
	if err == nil {
		t.Error("expected error for empty report text")
	}
}
