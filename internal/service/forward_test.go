package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cursala-gateway/internal/client"
	"cursala-gateway/internal/config"
	"cursala-gateway/internal/model"
)

func newTestService(t *testing.T, backendURL string) *ForwardService {
	t.Helper()
	cfg := &config.Config{
		Backend: config.BackendConfig{
			URL:             backendURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewForwardService(client.NewBackendClient(cfg, logger, nil), cfg, logger)
}

func readReply(t *testing.T, r *model.Reply) string {
	t.Helper()
	defer func() { _ = r.Body.Close() }()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read reply body: %v", err)
	}
	return string(data)
}

func getRequest(path string) *model.ForwardRequest {
	return &model.ForwardRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Path:   path,
		Header: http.Header{},
	}
}

func TestStripConnectionHeaders(t *testing.T) {
	src := http.Header{
		"Host":            {"gateway.local"},
		"Connection":      {"keep-alive"},
		"Content-Length":  {"42"},
		"Accept-Encoding": {"gzip, br"},
		"Authorization":   {"Bearer secret"},
		"Accept":          {"application/json"},
		"X-Custom-Header": {"kept"},
	}

	dst := stripConnectionHeaders(src)

	tests := []struct {
		name    string
		key     string
		wantLen int
	}{
		{"Host stripped", "Host", 0},
		{"Connection stripped", "Connection", 0},
		{"Content-Length stripped", "Content-Length", 0},
		{"Accept-Encoding stripped", "Accept-Encoding", 0},
		{"Authorization forwarded", "Authorization", 1},
		{"Accept forwarded", "Accept", 1},
		{"custom header forwarded", "X-Custom-Header", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(dst.Values(tt.key))
			if got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}

	if src.Get("Connection") == "" {
		t.Error("inbound header map must not be modified")
	}
}

func TestAuthorizationOnly(t *testing.T) {
	dst := authorizationOnly(http.Header{
		"Authorization": {"Bearer secret"},
		"Cookie":        {"session=abc"},
		"Accept":        {"*/*"},
	})
	if len(dst) != 1 || dst.Get("Authorization") != "Bearer secret" {
		t.Errorf("authorizationOnly() = %v, want only Authorization", dst)
	}
	if got := authorizationOnly(http.Header{}); len(got) != 0 {
		t.Errorf("authorizationOnly(empty) = %v, want empty", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"abc123", "Bearer abc123"},
		{"Bearer abc123", "Bearer abc123"},
		{"bearer abc123", "Bearer bearer abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := BearerToken(tt.token); got != tt.want {
				t.Errorf("BearerToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestDirect_TargetAndTokenOverride(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"bare token gets prefix", "abc123", "Bearer abc123"},
		{"prefixed token unchanged", "Bearer abc123", "Bearer abc123"},
		{"no token keeps inbound", "", "Bearer inbound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/direct" {
					t.Errorf("upstream path = %q, want %q", r.URL.Path, "/api/v1/direct")
				}
				if got := r.URL.Query().Get("path"); got != "/courses/public?page=2" {
					t.Errorf("path param = %q, want %q", got, "/courses/public?page=2")
				}
				if got := r.Header.Get("Authorization"); got != tt.want {
					t.Errorf("Authorization = %q, want %q", got, tt.want)
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				_, _ = w.Write([]byte(`{"data":[]}`))
			}))
			defer backend.Close()

			svc := newTestService(t, backend.URL+"/api/v1")
			pr := getRequest("/courses/public?page=2")
			pr.Header.Set("Authorization", "Bearer inbound")
			pr.Token = tt.token

			reply, err := svc.Direct(pr)
			if err != nil {
				t.Fatalf("Direct() error = %v", err)
			}
			if reply.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusOK)
			}
			if got := reply.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want %q", got, "application/json")
			}
			if got := readReply(t, reply); got != `{"data":[]}` {
				t.Errorf("body = %q, want %q", got, `{"data":[]}`)
			}
		})
	}
}

func TestDirect_DoesNotForwardConnectionHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Connection"); got == "x-inbound-connection" {
			t.Errorf("Connection header copied from inbound request")
		}
		if r.Host == "browser.example" {
			t.Errorf("Host copied from inbound request")
		}
		if r.ContentLength == 999 {
			t.Errorf("Content-Length copied from inbound request")
		}
		if got := r.Header.Get("X-Trace"); got != "t-1" {
			t.Errorf("X-Trace = %q, want %q", got, "t-1")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	svc := newTestService(t, backend.URL)
	pr := getRequest("/courses")
	pr.Header.Set("Host", "browser.example")
	pr.Header.Set("Connection", "x-inbound-connection")
	pr.Header.Set("Content-Length", "999")
	pr.Header.Set("X-Trace", "t-1")

	reply, err := svc.Direct(pr)
	if err != nil {
		t.Fatalf("Direct() error = %v", err)
	}
	_ = readReply(t, reply)
}

func TestDirect_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		want        string
	}{
		{"plain text wrapped", "text/plain", "not found", http.StatusNotFound, `{"message":"not found"}`},
		{"json verbatim", "application/json", `{"message":"Curso no encontrado"}`, http.StatusNotFound, `{"message":"Curso no encontrado"}`},
		{"html wrapped unescaped", "text/html", "<b>boom</b>", http.StatusInternalServerError, `{"message":"<b>boom</b>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.Header().Set("Cache-Control", "no-cache")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer backend.Close()

			reply, err := newTestService(t, backend.URL).Direct(getRequest("/courses/x"))
			if err != nil {
				t.Fatalf("Direct() error = %v", err)
			}
			if reply.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", reply.StatusCode, tt.status)
			}
			if got := reply.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want %q", got, "application/json")
			}
			if got := reply.Header.Get("Cache-Control"); got != "" {
				t.Errorf("Cache-Control = %q, want no relayed headers on errors", got)
			}
			if got := readReply(t, reply); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (failingBody) Close() error             { return nil }

func TestRelayDirect_ErrorBodyReadFailure(t *testing.T) {
	resp := &model.ForwardResponse{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       failingBody{},
	}

	reply, err := relayDirect("/courses", resp)
	if err != nil {
		t.Fatalf("relayDirect() error = %v", err)
	}
	if reply.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusBadGateway)
	}
	want := `{"message":"Error processing response","original":"Error reading response"}`
	if got := readReply(t, reply); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestDirect_NotModified(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Etag", `"v1"`)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer backend.Close()

	reply, err := newTestService(t, backend.URL).Direct(getRequest("/file/logo.png/image"))
	if err != nil {
		t.Fatalf("Direct() error = %v", err)
	}
	if reply.StatusCode != http.StatusNotModified {
		t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusNotModified)
	}
	if got := reply.Header.Get("Etag"); got != `"v1"` {
		t.Errorf("Etag = %q, want %q", got, `"v1"`)
	}
	if got := readReply(t, reply); got != "" {
		t.Errorf("body = %q, want empty", got)
	}
}

func TestDirect_BinaryDefaults(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}

	tests := []struct {
		name     string
		path     string
		upstream string
		want     string
	}{
		{"image path without type", "/file/a.png/image", "", "application/octet-stream"},
		{"pdf path without type", "/file/cert.pdf", "", "application/octet-stream"},
		{"download path keeps upstream type", "/file/a.zip/download", "application/zip", "application/zip"},
		{"plain path without type is json", "/courses/home", "", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.upstream != "" {
					w.Header().Set("Content-Type", tt.upstream)
				} else {
					// Suppress net/http content sniffing.
					w.Header()["Content-Type"] = nil
				}
				w.Header().Set("Accept-Ranges", "bytes")
				_, _ = w.Write(payload)
			}))
			defer backend.Close()

			reply, err := newTestService(t, backend.URL).Direct(getRequest(tt.path))
			if err != nil {
				t.Fatalf("Direct() error = %v", err)
			}
			if got := reply.Header.Get("Content-Type"); got != tt.want {
				t.Errorf("Content-Type = %q, want %q", got, tt.want)
			}
			if got := reply.Header.Get("Accept-Ranges"); got != "bytes" {
				t.Errorf("Accept-Ranges = %q, want %q", got, "bytes")
			}
			if got := readReply(t, reply); got != string(payload) {
				t.Errorf("body = %x, want %x", got, payload)
			}
		})
	}
}

func TestDirect_JSONBodyForwarded(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"name":"Ana"}` {
			t.Errorf("body = %q, want %q", body, `{"name":"Ana"}`)
		}
		if r.ContentLength != int64(len(body)) {
			t.Errorf("ContentLength = %d, want %d", r.ContentLength, len(body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	pr := getRequest("/forms/business-training")
	pr.Method = http.MethodPost
	pr.Header.Set("Content-Type", "application/json")
	pr.Header.Set("Content-Length", "1")
	pr.Body = io.NopCloser(strings.NewReader(`{"name":"Ana"}`))

	reply, err := newTestService(t, backend.URL).Direct(pr)
	if err != nil {
		t.Fatalf("Direct() error = %v", err)
	}
	if reply.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusCreated)
	}
	_ = readReply(t, reply)
}

func TestDirect_InvalidJSONBody(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1")

	for _, body := range []string{"", "not json"} {
		pr := getRequest("/forms")
		pr.Method = http.MethodPut
		pr.Body = io.NopCloser(strings.NewReader(body))

		_, err := svc.Direct(pr)
		if !errors.Is(err, ErrInvalidBody) {
			t.Errorf("Direct(body=%q) error = %v, want ErrInvalidBody", body, err)
		}
	}
}

func TestDirect_MultipartReencoded(t *testing.T) {
	var inbound bytes.Buffer
	mw := multipart.NewWriter(&inbound)
	_ = mw.WriteField("fullName", "Ana Pérez")
	fw, _ := mw.CreateFormFile("cv", "cv.pdf")
	_, _ = fw.Write([]byte("%PDF-1.4 fake"))
	_ = mw.Close()
	inboundType := mw.FormDataContentType()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == inboundType {
			t.Errorf("Content-Type reused inbound boundary")
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("Content-Type = %q, want multipart/form-data", ct)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("fullName"); got != "Ana Pérez" {
			t.Errorf("fullName = %q, want %q", got, "Ana Pérez")
		}
		f, hdr, err := r.FormFile("cv")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer func() { _ = f.Close() }()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "cv.pdf" || string(data) != "%PDF-1.4 fake" {
			t.Errorf("file = %q (%q), want cv.pdf", hdr.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	pr := getRequest("/instructor-applications")
	pr.Method = http.MethodPost
	pr.Header.Set("Content-Type", inboundType)
	pr.Body = io.NopCloser(&inbound)

	reply, err := newTestService(t, backend.URL).Direct(pr)
	if err != nil {
		t.Fatalf("Direct() error = %v", err)
	}
	if got := readReply(t, reply); got != `{"ok":true}` {
		t.Errorf("body = %q, want %q", got, `{"ok":true}`)
	}
}

func TestDirect_DeleteDoesNotSendBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("DELETE forwarded a body: %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	pr := getRequest("/courses")
	pr.Method = http.MethodDelete
	pr.Body = io.NopCloser(strings.NewReader("ignored"))

	reply, err := newTestService(t, backend.URL).Direct(pr)
	if err != nil {
		t.Fatalf("Direct() error = %v", err)
	}
	_ = readReply(t, reply)
}

func TestDirect_TransportError(t *testing.T) {
	_, err := newTestService(t, "http://127.0.0.1:1").Direct(getRequest("/courses"))
	if err == nil {
		t.Fatal("Direct() expected transport error, got nil")
	}
}

func TestSimple_MissingPath(t *testing.T) {
	_, err := newTestService(t, "http://127.0.0.1:1").Simple(getRequest(""))
	if !errors.Is(err, ErrMissingPath) {
		t.Fatalf("Simple() error = %v, want ErrMissingPath", err)
	}
	if err.Error() != "El parámetro 'path' es requerido" {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestSimple_ForwardsOnlyAuthorization(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if r.URL.Path != "/api/v1/public/company-data" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer q-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer q-token")
		}
		if got := r.Header.Get("Cookie"); got != "" {
			t.Errorf("Cookie forwarded: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Etag", `"x"`)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer backend.Close()

	pr := getRequest("/public/company-data")
	pr.Method = http.MethodPost
	pr.Header.Set("Authorization", "Bearer inbound")
	pr.Header.Set("Cookie", "session=1")
	pr.Token = "q-token"

	reply, err := newTestService(t, backend.URL+"/api/v1").Simple(pr)
	if err != nil {
		t.Fatalf("Simple() error = %v", err)
	}
	if reply.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want %d", reply.StatusCode, http.StatusAccepted)
	}
	if got := reply.Header.Get("Etag"); got != "" {
		t.Errorf("Etag = %q, want dropped", got)
	}
	if got := readReply(t, reply); got != `{"data":{}}` {
		t.Errorf("body = %q", got)
	}
}

func TestSimple_BinaryDefaults(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/file/cert.pdf", "application/pdf"},
		{"/file/cert.pdf?download=1", "application/pdf"},
		{"/file/a.pdf/download", "application/octet-stream"},
		{"/file/a.png/image", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header()["Content-Type"] = nil
				_, _ = w.Write([]byte("0123456789"))
			}))
			defer backend.Close()

			reply, err := newTestService(t, backend.URL).Simple(getRequest(tt.path))
			if err != nil {
				t.Fatalf("Simple() error = %v", err)
			}
			if got := reply.Header.Get("Content-Type"); got != tt.want {
				t.Errorf("Content-Type = %q, want %q", got, tt.want)
			}
			if got := reply.Header.Get("Content-Length"); got != "10" {
				t.Errorf("Content-Length = %q, want %q", got, "10")
			}
			if got := readReply(t, reply); got != "0123456789" {
				t.Errorf("body = %q", got)
			}
		})
	}
}

func TestLegacy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantBody   string
	}{
		{"json passthrough", http.StatusOK, `{"data":[1,2]}`, http.StatusOK, `{"data":[1,2]}`},
		{"created becomes 200", http.StatusCreated, `{"id":"x"}`, http.StatusOK, `{"id":"x"}`},
		{"text encoded as json string", http.StatusOK, "hola", http.StatusOK, `"hola"`},
		{"error envelope", http.StatusNotFound, `{"message":"nope"}`, http.StatusNotFound, `{"error":"Request failed with status code 404"}`},
		{"server error envelope", http.StatusServiceUnavailable, "down", http.StatusServiceUnavailable, `{"error":"Request failed with status code 503"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/faqs" || r.URL.Query().Get("activeOnly") != "true" {
					t.Errorf("upstream URL = %q", r.URL.String())
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer backend.Close()

			reply, err := newTestService(t, backend.URL).Legacy(getRequest("/faqs?activeOnly=true"))
			if err != nil {
				t.Fatalf("Legacy() error = %v", err)
			}
			if reply.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", reply.StatusCode, tt.wantStatus)
			}
			if got := reply.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
			got := readReply(t, reply)
			if got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("body is not valid JSON: %q", got)
			}
		})
	}
}

func TestLegacy_UsesAPIBaseURL(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/legacy/validate/ABC" {
			t.Errorf("upstream path = %q, want %q", r.URL.Path, "/legacy/validate/ABC")
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	cfg := &config.Config{
		Backend: config.BackendConfig{
			URL:        "http://unused.invalid",
			APIBaseURL: backend.URL + "/legacy/",
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewForwardService(client.NewBackendClient(cfg, logger, nil), cfg, logger)

	reply, err := svc.Legacy(getRequest("/validate/ABC"))
	if err != nil {
		t.Fatalf("Legacy() error = %v", err)
	}
	_ = readReply(t, reply)
}

func TestPublicDownloadURL(t *testing.T) {
	svc := newTestService(t, "http://backend:8080/api/v1")

	tests := []struct {
		name  string
		file  string
		token string
		want  string
	}{
		{"no token", "temario.pdf", "", "http://backend:8080/api/v1/file/temario.pdf/publicdownload"},
		{"with token", "temario.pdf", "a b+c", "http://backend:8080/api/v1/file/temario.pdf/publicdownload?token=a+b%2Bc"},
		{"escaped name", "mi archivo/x.pdf", "", "http://backend:8080/api/v1/file/mi%20archivo%2Fx.pdf/publicdownload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.PublicDownloadURL(tt.file, tt.token); got != tt.want {
				t.Errorf("PublicDownloadURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
