package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
)

func TestWriteErrorServiceError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-42"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, svcerrors.NotFound("equipment", "abc"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error != string(svcerrors.CodeNotFound) {
		t.Errorf("error = %q, want NOT_FOUND", body.Error)
	}
	if body.TraceID != "trace-42" {
		t.Errorf("trace_id = %q, want trace-42", body.TraceID)
	}
	if body.MessageAr == "" {
		t.Error("expected Arabic message")
	}
}

func TestWriteErrorPlainErrorHidesText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), svcerrors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("internal error text leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"جرار"}`))
	if err := DecodeJSON(req, &v); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if v.Title != "جرار" {
		t.Errorf("Title = %q", v.Title)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"a"} {"title":"b"}`))
	if err := DecodeJSON(req, &v); err == nil {
		t.Error("expected error for trailing data")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := DecodeJSON(req, &v); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if !truncated || string(data) != "abcd" {
		t.Errorf("got %q truncated=%v, want abcd truncated=true", data, truncated)
	}

	if _, err := ReadAllStrict(strings.NewReader("abcdef"), 4); err == nil {
		t.Error("ReadAllStrict() expected error for oversized body")
	}
	if got, err := ReadAllStrict(strings.NewReader("abc"), 4); err != nil || string(got) != "abc" {
		t.Errorf("ReadAllStrict() = %q, %v", got, err)
	}
}

func TestQueryParsers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&min_price=10.5&available=true&bad=x", nil)

	if n, err := QueryInt(req, "limit", 10); err != nil || n != 20 {
		t.Errorf("QueryInt(limit) = %d, %v", n, err)
	}
	if n, err := QueryInt(req, "offset", 7); err != nil || n != 7 {
		t.Errorf("QueryInt(offset default) = %d, %v", n, err)
	}
	if _, err := QueryInt(req, "bad", 0); !svcerrors.IsValidation(err) {
		t.Errorf("QueryInt(bad) error = %v, want validation", err)
	}
	if f, err := QueryFloat(req, "min_price"); err != nil || f == nil || *f != 10.5 {
		t.Errorf("QueryFloat(min_price) = %v, %v", f, err)
	}
	if b, err := QueryBool(req, "available"); err != nil || b == nil || !*b {
		t.Errorf("QueryBool(available) = %v, %v", b, err)
	}
}
