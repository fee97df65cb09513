package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error {
		rid, _ := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.NoContent(http.StatusOK)
	}

	mw := RequestID()
	if err := mw(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error {
		rid, _ := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.NoContent(http.StatusOK)
	}

	mw := RequestID()
	if err := mw(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_EmitsRequestLine(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognitions", strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-123")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	if err := Logger(logger)(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := buf.String()
	for _, want := range []string{`"request_id":"req-123"`, `"method":"POST"`, `"path":"/api/v1/recognitions"`, `"bytes_in":7`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %s in log line, got %s", want, line)
		}
	}
	if strings.Contains(line, "session_id") {
		t.Errorf("expected no session_id without a registered session, got %s", line)
	}
}

func TestLogger_CorrelatesSessionID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := func(c echo.Context) error {
		c.Set("session_id", "sess-42")
		return c.NoContent(http.StatusOK)
	}
	if err := Logger(logger)(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"session_id":"sess-42"`) {
		t.Errorf("expected session_id in log line, got %s", buf.String())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	logger := zerolog.New(os.Stderr)
	h := func(c echo.Context) error {
		panic("boom")
	}

	err := Recovery(logger)(h)(c)
	if err == nil {
		t.Fatal("expected error after panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", httpErr.Code)
	}
}

func TestBodyLimit_RejectsOversizedBody(t *testing.T) {
	e := echo.New()
	body := bytes.NewBufferString(strings.Repeat("x", 2048))
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}

	if err := BodyLimit("1K")(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", rec.Code)
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("small"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}

	if err := BodyLimit("1K")(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1K", 1 << 10},
		{"25M", 25 << 20},
		{"1G", 1 << 30},
		{"4096", 4096},
		{"", 1 << 20},
		{"garbage", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRateLimit_ExhaustsBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	h := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		err := mw(h)(c)
		if err != nil {
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %T", err)
			}
			codes = append(codes, httpErr.Code)
			continue
		}
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third request to be limited, got %v", codes)
	}
}
