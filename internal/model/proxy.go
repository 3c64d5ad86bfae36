// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// ForwardRequest is a browser request to be forwarded to the backend.
type ForwardRequest struct {
	Ctx    context.Context
	Method string
	// Path is the backend path taken from the `path` query parameter.
	Path string
	// Token comes from the `token` query parameter and overrides Authorization.
	Token  string
	Header http.Header
	Body   io.ReadCloser
}

// ForwardResponse is the raw backend response before relay rules apply.
type ForwardResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Reply is what the gateway writes back to the browser. Body is either a
// buffered payload or the live upstream stream; the writer closes it.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
