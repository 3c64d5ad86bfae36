package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCertificate_Validate(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/validate/OK-1":
			_, _ = w.Write([]byte(`{"data":{"isValid":true,"student":{"firstName":"Ana"},"certificateInfo":{"certificateId":"OK-1"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Certificate not found"}`))
		}
	})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantError  string
	}{
		{"valid", "/api/certificates/OK-1", http.StatusOK, ""},
		{"unknown", "/api/certificates/NOPE", http.StatusNotFound, "Certificado no válido o no encontrado"},
		{"blank", "/api/certificates/%20", http.StatusBadRequest, "Código de verificación requerido"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(httptest.NewRequest(http.MethodGet, tt.target, http.NoBody))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				if got := decodeError(t, rec); got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
				return
			}

			var body struct {
				Data struct {
					IsValid bool `json:"isValid"`
					Student struct {
						FirstName string `json:"firstName"`
					} `json:"student"`
				} `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !body.Data.IsValid || body.Data.Student.FirstName != "Ana" {
				t.Errorf("data = %+v", body.Data)
			}
		})
	}
}
