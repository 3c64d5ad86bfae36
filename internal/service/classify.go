package service

import (
	"mime"
	"strings"
)

// binaryPathMarkers are the backend file-route fragments whose responses
// carry raw bytes (/file/{name}/image, /file/{name}/download, ...).
var binaryPathMarkers = []string{"/image", "/video", "/download", "/publicdownload", ".pdf"}

// IsBinaryPath reports whether a backend path points at a binary resource.
// Matching is a case-sensitive substring test.
func IsBinaryPath(path string) bool {
	for _, marker := range binaryPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// IsTextualMediaType reports whether a Content-Type value names a text payload.
func IsTextualMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(strings.ToLower(contentType), ";")
		mediaType = strings.TrimSpace(mediaType)
	}

	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-www-form-urlencoded", "application/problem+json":
		return true
	}
	return false
}

// Classify decides whether an upstream response is binary. The upstream
// Content-Type wins when present; the path heuristic only covers responses
// that arrive without one.
func Classify(path, contentType string) bool {
	if contentType != "" {
		return !IsTextualMediaType(contentType)
	}
	return IsBinaryPath(path)
}

// isPDFPath reports whether the path, query string excluded, names a PDF.
func isPDFPath(path string) bool {
	p, _, _ := strings.Cut(path, "?")
	return strings.HasSuffix(p, ".pdf")
}
