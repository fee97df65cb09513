package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		limit  int
		offset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"explicit", "limit=50&offset=10", 50, 10},
		{"capped", "limit=5000", MaxLimit, 0},
		{"negative offset", "limit=10&offset=-3", 10, 0},
		{"garbage", "limit=abc&offset=xyz", DefaultLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromContext(ctxWithQuery(tt.query))
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("got %+v, want limit=%d offset=%d", p, tt.limit, tt.offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore {
		t.Error("expected has_more=true when offset+limit < total")
	}
	r = NewResponse([]int{1}, 10, 5, 5)
	if r.HasMore {
		t.Error("expected has_more=false on the last page")
	}
}

func TestNextOffset(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if p.NextOffset() != 60 {
		t.Errorf("NextOffset() = %d, want 60", p.NextOffset())
	}
	if !p.HasNext(100) || p.HasNext(60) {
		t.Error("HasNext boundary wrong")
	}
}
