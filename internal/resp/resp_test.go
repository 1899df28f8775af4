package resp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOK(t *testing.T) {
	rr := httptest.NewRecorder()
	data := map[string]string{"status": "ok"}
	OK(rr, &data, "req-1", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body Response[map[string]string]
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Code != CodeOK || body.RequestID != "req-1" {
		t.Errorf("unexpected envelope: %+v", body)
	}
	if body.Data == nil || (*body.Data)["status"] != "ok" {
		t.Errorf("unexpected data: %+v", body.Data)
	}
}

func TestError(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusNotFound, CodeNotFound, "order not found", "req-2", "")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if _, ok := body["data"]; ok {
		t.Error("error response must not carry data")
	}
	if body["message"] != "order not found" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeOK, 200},
		{CodeInvalidParam, 400},
		{CodeBusinessRule, 400},
		{CodeUnauthorized, 401},
		{CodeForbidden, 403},
		{CodeNotFound, 404},
		{CodeConflict, 409},
		{CodeTooManyReq, 429},
		{CodeTimeout, 504},
		{CodeInternalError, 500},
	}
	for _, tt := range tests {
		if got := HTTPStatusFromCode(tt.code); got != tt.want {
			t.Errorf("HTTPStatusFromCode(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
