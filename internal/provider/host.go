package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
)

// VMProperties is the compute provider's description of a VM. The field set
// is whatever the provider returned; keys are preserved exactly.
type VMProperties struct {
	fields map[string]any
}

// Get returns the raw value for key.
func (p *VMProperties) Get(key string) (any, bool) {
	v, ok := p.fields[key]
	return v, ok
}

// String returns the value for key formatted as a string.
func (p *VMProperties) String(key string) (string, bool) {
	v, ok := p.fields[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case nil:
		return "", true
	default:
		return fmt.Sprint(t), true
	}
}

// Keys returns the field names in sorted order.
func (p *VMProperties) Keys() []string {
	keys := make([]string, 0, len(p.fields))
	for k := range p.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of fields.
func (p *VMProperties) Len() int { return len(p.fields) }

// MarshalJSON renders the original field set.
func (p *VMProperties) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.fields)
}

// HostProviderClient talks to the compute provider. Every "not there"
// answer (missing credential, non-2xx) is reported as absence.
type HostProviderClient struct {
	env        *domain.Environment
	credential CredentialFunc
	http       *http.Client
}

// NewHostProviderClient creates a client for env.
func NewHostProviderClient(env *domain.Environment, credential CredentialFunc, hc *http.Client) *HostProviderClient {
	return &HostProviderClient{env: env, credential: credential, http: hc}
}

// get fetches {endpoint}/{project}/{env}/{path...}. A nil response with a
// nil error means the credential is unavailable.
func (c *HostProviderClient) get(ctx context.Context, path ...string) (*response, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		logger.Warn("Host provider credential unavailable",
			zap.String("environment", envName(c.env)),
			zap.Error(err),
		)
		return nil, nil
	}
	target := joinURL(cred.Endpoint, append([]string{cred.Project, envName(c.env)}, path...)...)
	return send(ctx, c.http, http.MethodGet, target, nil, nil)
}

// GetVMByHost returns the VM backing host, or nil when the provider does
// not know it (for example before provisioning).
func (c *HostProviderClient) GetVMByHost(ctx context.Context, host *domain.Host) (*VMProperties, error) {
	if host == nil {
		return nil, nil
	}
	resp, err := c.get(ctx, "host", host.Identifier)
	if err != nil || resp == nil {
		return nil, err
	}
	if !resp.ok() {
		logger.Info("Host provider has no vm for host",
			zap.String("host", host.Hostname),
			zap.String("identifier", host.Identifier),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderBadResponse,
			"host provider returned a non-object vm body", http.StatusBadGateway).
			WithParams(map[string]interface{}{"host": host.Hostname})
	}
	return &VMProperties{fields: fields}, nil
}

// GetOfferingID returns the compute offering for a cpus/memory pair. The
// bool is false when the provider has none.
func (c *HostProviderClient) GetOfferingID(ctx context.Context, cpus, memory int) (string, bool, error) {
	resp, err := c.get(ctx, "credential", strconv.Itoa(cpus), strconv.Itoa(memory))
	if err != nil || resp == nil {
		return "", false, err
	}
	if !resp.ok() {
		logger.Info("Host provider has no offering",
			zap.Int("cpus", cpus),
			zap.Int("memory", memory),
			zap.Int("status", resp.StatusCode),
		)
		return "", false, nil
	}

	var body struct {
		OfferingID *json.RawMessage `json:"offering_id"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", false, apperrors.Wrap(err, apperrors.CodeProviderBadResponse,
			"host provider returned an invalid offering body", http.StatusBadGateway)
	}
	if body.OfferingID == nil {
		return "", false, nil
	}
	return rawScalar(*body.OfferingID)
}

// rawScalar renders a JSON string or number as text. null is absence.
func rawScalar(raw json.RawMessage) (string, bool, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != "", nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true, nil
	}
	if string(raw) == "null" {
		return "", false, nil
	}
	return "", false, apperrors.New(apperrors.CodeProviderBadResponse,
		"offering_id is neither a string nor a number", http.StatusBadGateway)
}
