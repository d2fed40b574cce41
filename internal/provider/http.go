// Package provider contains the HTTP clients for the external services
// steps call: the compute provider (host lifecycle) and the network ACL
// service.
//
// Clients never cache credentials globally. Each one is built with a
// CredentialFunc (usually from Once) and an *http.Client carrying the
// per-call timeout.
//
// Import Path: dbaas.io/workflow/internal/provider
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 1 << 20

// NewHTTPClient returns the client used for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// response is a fully read provider reply.
type response struct {
	StatusCode int
	Body       []byte
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// send performs one request. Only transport failures are errors; any HTTP
// status is returned to the caller to interpret.
func send(ctx context.Context, hc *http.Client, method, target string, payload any, auth *domain.Credential) (*response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil && auth.User != "" {
		req.SetBasicAuth(auth.User, auth.Password)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderUnreachable,
			fmt.Sprintf("%s %s", method, redact(target)), http.StatusBadGateway)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderUnreachable,
			fmt.Sprintf("read %s %s", method, redact(target)), http.StatusBadGateway)
	}
	return &response{StatusCode: resp.StatusCode, Body: data}, nil
}

// joinURL appends path segments to an endpoint, keeping its query string.
func joinURL(endpoint string, segments ...string) string {
	base, query, hasQuery := strings.Cut(endpoint, "?")
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	if hasQuery {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}

// redact drops the query string from URLs that end up in errors.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
