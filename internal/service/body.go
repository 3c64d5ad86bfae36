package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// ErrInvalidBody is returned when an inbound body cannot be parsed.
var ErrInvalidBody = errors.New("invalid request body")

// carriesBody reports whether the method forwards a request body upstream.
func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// isMultipart reports whether a Content-Type announces multipart form data.
func isMultipart(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "multipart/form-data")
}

// encodeBody reads the inbound body and returns the payload to send upstream
// together with the Content-Type it requires. Multipart bodies are rewritten
// under a fresh boundary; everything else must be valid JSON and keeps the
// inbound Content-Type (application/json when none was sent).
func encodeBody(contentType string, body io.Reader) (*bytes.Buffer, string, error) {
	if body == nil {
		body = http.NoBody
	}

	if isMultipart(contentType) {
		return reencodeMultipart(contentType, body)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(data) {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, "", fmt.Errorf("%w: unexpected end of JSON input", ErrInvalidBody)
		}
		return nil, "", fmt.Errorf("%w: body is not valid JSON", ErrInvalidBody)
	}

	if contentType == "" {
		contentType = "application/json"
	}
	return bytes.NewBuffer(data), contentType, nil
}

func reencodeMultipart(contentType string, body io.Reader) (*bytes.Buffer, string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, "", fmt.Errorf("%w: multipart body without boundary", ErrInvalidBody)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mr := multipart.NewReader(body, boundary)

	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}

		w, err := mw.CreatePart(part.Header)
		if err != nil {
			_ = part.Close()
			return nil, "", fmt.Errorf("create part: %w", err)
		}
		if _, err := io.Copy(w, part); err != nil {
			_ = part.Close()
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
		_ = part.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
