// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cdn fetches archive indices and payloads from the content
// delivery hosts named in .build.info.
//
// Files live at https://<host>/<path>/data/<xx>/<yy>/<name>, where xx
// and yy are the first two byte pairs of the lower-cased name, with a
// ".index" suffix for archive indices. Hosts are tried in order and the
// first success wins. Every request carries a bounded timeout, and
// response bodies are capped by lib/netutil.
//
// A host entry may carry its own scheme ("http://mirror.local:8080");
// bare host names use HTTPS.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/logging"
	"github.com/bureau-foundation/casc/lib/netutil"
)

// DefaultTimeout bounds each request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	Hosts []string
	Path  string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Timeout time.Duration
	Logger  *slog.Logger
}

// Client fetches files from a list of CDN hosts. It is safe for
// concurrent use.
type Client struct {
	hosts   []string
	path    string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client. It fails with ErrInvalidConfig when no host is
// given.
func New(options Options) (*Client, error) {
	if len(options.Hosts) == 0 {
		return nil, fmt.Errorf("no cdn hosts: %w", cascerr.ErrInvalidConfig)
	}
	client := &Client{
		hosts:   options.Hosts,
		path:    strings.Trim(options.Path, "/"),
		http:    options.HTTPClient,
		timeout: options.Timeout,
		logger:  logging.Component(options.Logger, "cdn"),
	}
	if client.http == nil {
		client.http = http.DefaultClient
	}
	if client.timeout <= 0 {
		client.timeout = DefaultTimeout
	}
	return client, nil
}

// Hosts returns the configured hosts in try order.
func (c *Client) Hosts() []string { return c.hosts }

// URL returns the location of name on host.
func (c *Client) URL(host, name string, index bool) string {
	name = strings.ToLower(name)
	base := strings.TrimRight(host, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	var builder strings.Builder
	builder.WriteString(base)
	builder.WriteByte('/')
	if c.path != "" {
		builder.WriteString(c.path)
		builder.WriteByte('/')
	}
	builder.WriteString("data/")
	if len(name) >= 4 {
		builder.WriteString(name[0:2])
		builder.WriteByte('/')
		builder.WriteString(name[2:4])
		builder.WriteByte('/')
	}
	builder.WriteString(name)
	if index {
		builder.WriteString(".index")
	}
	return builder.String()
}

// Get fetches a whole file: an archive index when index is set,
// otherwise a loose data file named by its encoding key.
func (c *Client) Get(ctx context.Context, name string, index bool) ([]byte, error) {
	return c.fetch(ctx, name, index, nil, -1)
}

// GetRange fetches bytes [start, end] (inclusive) of an archive.
func (c *Client) GetRange(ctx context.Context, name string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range %d-%d", start, end)
	}
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	return c.fetch(ctx, name, false, header, end-start+1)
}

// fetch tries each host in order. want, when non-negative, is the
// expected body length of a range request.
func (c *Client) fetch(ctx context.Context, name string, index bool, header http.Header, want int64) ([]byte, error) {
	var errs []error
	for _, host := range c.hosts {
		url := c.URL(host, name, index)
		data, err := c.get(ctx, url, header)
		if err == nil && want >= 0 {
			data, err = trimRange(data, header.Get("Range"), want)
		}
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("cdn request failed", "url", url, "error", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("fetching %s from %d cdn hosts: %w", name, len(c.hosts), errors.Join(errs...))
}

func (c *Client) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return netutil.Get(ctx, c.http, url, header)
}

// trimRange accepts an exact range body, and slices a full-file body
// from a server that ignored the Range header.
func trimRange(data []byte, rangeHeader string, want int64) ([]byte, error) {
	if int64(len(data)) == want {
		return data, nil
	}
	var start, end int64
	if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end); err == nil && int64(len(data)) > end {
		return data[start : end+1], nil
	}
	return nil, fmt.Errorf("range response of %d bytes, want %d: %w", len(data), want, cascerr.ErrInvalidBLTE)
}
