package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"terralens/internal/schema"
)

func TestInvalidCarriesFieldErrors(t *testing.T) {
	var c schema.Checker
	c.Add("name", "Site name is required.")
	rec := httptest.NewRecorder()
	Invalid(rec, "Invalid site.", c.Err("mining site"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Invalid site." || len(body.Fields) != 1 || body.Fields[0].Field != "name" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadBodyRejectsOversizedPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", MaxBodyBytes+1)))
	if _, err := ReadBody(httptest.NewRecorder(), req); err == nil {
		t.Fatalf("expected size error")
	}
}
