// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers shared by the CDN client
// and the remote key list fetcher.
//
// Every response body read goes through [ReadResponse], which bounds
// the read at [MaxResponseSize] so a misbehaving server cannot exhaust
// memory. [Get] wraps the request/status/read sequence both callers
// need and reports non-2xx responses as [*StatusError].
package netutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxResponseSize bounds response body reads: 1 GiB. Archive range
// requests and index files are far smaller; the bound exists only to
// stop a pathological response.
const MaxResponseSize int64 = 1 << 30

// ReadResponse reads a response body up to MaxResponseSize bytes. Use
// instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an HTTP error response body for diagnostic messages.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}

// StatusError is returned by Get for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: http %d: %s", e.URL, e.StatusCode, e.Body)
}

// Get issues a GET request with the given extra headers and returns
// the body of a 2xx response.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	for name, values := range header {
		for _, value := range values {
			request.Header.Add(name, value)
		}
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: response.StatusCode, Body: ErrorBody(response.Body)}
	}

	data, err := ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return data, nil
}
