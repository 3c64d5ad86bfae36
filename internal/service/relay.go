package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cursala-gateway/internal/model"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"
	contentTypePDF    = "application/pdf"
)

// directResponseHeaders are the upstream headers relayed by /api/direct.
var directResponseHeaders = []string{
	"Content-Type",
	"Content-Range",
	"Accept-Ranges",
	"Content-Length",
	"Cache-Control",
	"Etag",
	"Last-Modified",
	"Content-Disposition",
}

// simpleResponseHeaders are the upstream headers relayed by /api/direct-simple.
var simpleResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Cache-Control",
	"Content-Disposition",
}

// errorReadFailure replaces an upstream error body that could not be read.
var errorReadFailure = struct {
	Message  string `json:"message"`
	Original string `json:"original"`
}{
	Message:  "Error processing response",
	Original: "Error reading response",
}

// RelayFunc turns a backend response into the reply sent to the browser.
// path is the backend path the request targeted.
type RelayFunc func(path string, resp *model.ForwardResponse) (*model.Reply, error)

// pickHeaders copies the allow-listed headers present in src.
func pickHeaders(src http.Header, allow []string) http.Header {
	dst := make(http.Header, len(allow))
	for _, key := range allow {
		if vals := src.Values(key); len(vals) > 0 && vals[0] != "" {
			dst[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
		}
	}
	return dst
}

// marshalJSON encodes v the way browsers' JSON.stringify does (no HTML escaping).
func marshalJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v) // values passed here are plain maps, structs and strings
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func bufferedReply(status int, header http.Header, data []byte) *model.Reply {
	return &model.Reply{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
}

func jsonReply(status int, data []byte) *model.Reply {
	return bufferedReply(status, http.Header{"Content-Type": {contentTypeJSON}}, data)
}

// relayDirect implements the /api/direct response contract: 304 passthrough,
// JSON-normalized errors, streamed binaries and buffered text.
func relayDirect(path string, resp *model.ForwardResponse) (*model.Reply, error) {
	upstreamType := resp.Header.Get("Content-Type")
	binary := Classify(path, upstreamType)

	header := pickHeaders(resp.Header, directResponseHeaders)
	if header.Get("Content-Type") == "" {
		if binary {
			header.Set("Content-Type", contentTypeBinary)
		} else {
			header.Set("Content-Type", contentTypeJSON)
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		_ = resp.Body.Close()
		return &model.Reply{StatusCode: http.StatusNotModified, Header: header, Body: http.NoBody}, nil

	case resp.StatusCode >= http.StatusBadRequest:
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return jsonReply(resp.StatusCode, marshalJSON(errorReadFailure)), nil
		}
		if strings.Contains(upstreamType, contentTypeJSON) {
			return jsonReply(resp.StatusCode, data), nil
		}
		return jsonReply(resp.StatusCode, marshalJSON(map[string]string{"message": string(data)})), nil

	case binary:
		// Streamed as-is so large files and video never sit in memory.
		return &model.Reply{StatusCode: resp.StatusCode, Header: header, Body: resp.Body}, nil
	}

	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if strings.Contains(upstreamType, contentTypeJSON) {
		header.Set("Content-Type", contentTypeJSON)
	}
	return bufferedReply(resp.StatusCode, header, data), nil
}

// relaySimple implements the /api/direct-simple contract: every body is
// buffered, binaries get a content type when upstream sent none.
func relaySimple(path string, resp *model.ForwardResponse) (*model.Reply, error) {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	header := pickHeaders(resp.Header, simpleResponseHeaders)
	if Classify(path, resp.Header.Get("Content-Type")) {
		if header.Get("Content-Type") == "" {
			if isPDFPath(path) {
				header.Set("Content-Type", contentTypePDF)
			} else {
				header.Set("Content-Type", contentTypeBinary)
			}
		}
		header.Set("Content-Length", strconv.Itoa(len(data)))
	}

	return bufferedReply(resp.StatusCode, header, data), nil
}

// relayLegacy implements the /api/fetch contract: successful bodies are
// re-served as JSON with status 200, any non-2xx becomes an error envelope.
func relayLegacy(_ string, resp *model.ForwardResponse) (*model.Reply, error) {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
		return jsonReply(resp.StatusCode, marshalJSON(map[string]string{"error": msg})), nil
	}

	if !json.Valid(data) {
		data = marshalJSON(string(data))
	}
	return jsonReply(http.StatusOK, data), nil
}
