package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
)

// ACL rule metadata owner for every rule this service creates.
const aclOwner = "dbaas"

// ACLClient manages network ACL rules binding applications to databases.
// Unlike the compute provider, a missing credential is fatal here.
type ACLClient struct {
	env        *domain.Environment
	credential CredentialFunc
	http       *http.Client
}

// NewACLClient creates a client for env.
func NewACLClient(env *domain.Environment, credential CredentialFunc, hc *http.Client) *ACLClient {
	return &ACLClient{env: env, credential: credential, http: hc}
}

func (c *ACLClient) cred(ctx context.Context) (*domain.Credential, error) {
	cred, err := c.credential(ctx)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil, apperrors.ErrACLCredentialNotFoundf(envName(c.env), err)
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, apperrors.CodeStoreUnavailable,
			fmt.Sprintf("read ACLFROMHELL credential for env %s", envName(c.env)),
		).WithParams(map[string]interface{}{"environment": envName(c.env)})
	}
	return cred, nil
}

// Rule is one ACL rule as returned by the lookup endpoint.
type Rule struct {
	RuleID      RuleID          `json:"RuleID"`
	Destination RuleDestination `json:"Destination"`
}

// RuleID accepts both string and numeric identifiers.
type RuleID string

func (id *RuleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = RuleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rule id: %w", err)
	}
	*id = RuleID(n.String())
	return nil
}

// RuleDestination is the destination part of a Rule.
type RuleDestination struct {
	ExternalDNS struct {
		Name string `json:"Name"`
	} `json:"ExternalDNS"`
}

// RuleLookup is the raw answer of GetRule.
type RuleLookup struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx answer.
func (l *RuleLookup) OK() bool {
	return l.StatusCode >= 200 && l.StatusCode < 300
}

// Rules decodes the body as a list of rules.
func (l *RuleLookup) Rules() ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(l.Body, &rules); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderBadResponse,
			"acl rule lookup returned a non-list body", http.StatusBadGateway)
	}
	return rules, nil
}

// GetRule looks up the rules of db, optionally narrowed to one app.
func (c *ACLClient) GetRule(ctx context.Context, db *domain.Database, appName string) (*RuleLookup, error) {
	cred, err := c.cred(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("metadata.owner", aclOwner)
	params.Set("metadata.service-name", cred.Project)
	params.Set("metadata.instance-name", db.Name)
	if appName != "" {
		params.Set("source.tsuruapp.appname", appName)
	}

	target, err := withQuery(cred.Endpoint, params)
	if err != nil {
		return nil, err
	}

	logger.Debug("ACL rule lookup",
		zap.String("database", db.Name),
		zap.String("app", appName),
	)
	resp, err := send(ctx, c.http, http.MethodGet, target, nil, cred)
	if err != nil {
		return nil, err
	}
	return &RuleLookup{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// withQuery merges params into the endpoint's own query string.
func withQuery(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeConfigInvalid,
			"acl endpoint is not a valid url", http.StatusInternalServerError)
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ACLResult reports one AddACL call.
type ACLResult struct {
	Hostname   string `json:"hostname"`
	StatusCode int    `json:"status_code"`
	Accepted   bool   `json:"accepted"`
	Body       string `json:"body,omitempty"`
}

type aclPort struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

type aclPayload struct {
	Source struct {
		TsuruApp struct {
			AppName string `json:"appname"`
		} `json:"tsuruapp"`
	} `json:"source"`
	Destination struct {
		ExternalDNS struct {
			Name  string    `json:"name"`
			Ports []aclPort `json:"ports"`
		} `json:"externaldns"`
	} `json:"destination"`
	Target   string            `json:"target"`
	Metadata map[string]string `json:"metadata"`
}

func newACLPayload(db *domain.Database, project, appName, hostname string) aclPayload {
	var p aclPayload
	p.Source.TsuruApp.AppName = appName
	p.Destination.ExternalDNS.Name = hostname
	p.Destination.ExternalDNS.Ports = []aclPort{}
	for _, port := range domain.DriverFor(db.EngineType).Ports {
		p.Destination.ExternalDNS.Ports = append(p.Destination.ExternalDNS.Ports, aclPort{Protocol: "tcp", Port: port})
	}
	p.Target = "accept"
	p.Metadata = map[string]string{
		"owner":         aclOwner,
		"service-name":  project,
		"instance-name": db.Name,
	}
	return p
}

// AddACL allows appName to reach hostname on the database's driver ports.
// A rejected rule is logged and reported in the result, not returned as an
// error; only credential and transport failures are errors.
func (c *ACLClient) AddACL(ctx context.Context, db *domain.Database, appName, hostname string) (*ACLResult, error) {
	cred, err := c.cred(ctx)
	if err != nil {
		return nil, err
	}

	payload := newACLPayload(db, cred.Project, appName, hostname)
	logger.Debug("ACL add payload",
		zap.String("database", db.Name),
		zap.String("hostname", hostname),
		zap.Any("payload", payload),
	)

	resp, err := send(ctx, c.http, http.MethodPost, cred.Endpoint, payload, cred)
	if err != nil {
		return nil, err
	}

	result := &ACLResult{Hostname: hostname, StatusCode: resp.StatusCode, Accepted: resp.ok()}
	if !result.Accepted {
		result.Body = string(resp.Body)
		logger.Warn("ACL bind rejected",
			zap.String("database", db.Name),
			zap.String("environment", envName(c.env)),
			zap.String("app", appName),
			zap.String("hostname", hostname),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", resp.Body),
		)
	}
	logger.Info("ACL add status",
		zap.String("database", db.Name),
		zap.String("hostname", hostname),
		zap.Int("status", resp.StatusCode),
	)
	return result, nil
}

// RemovalOutcome summarises a RemoveACL call.
type RemovalOutcome string

const (
	RemovalSuccess RemovalOutcome = "SUCCESS" // every rule deleted
	RemovalPartial RemovalOutcome = "PARTIAL" // some deletes failed
	RemovalFailed  RemovalOutcome = "FAILED"  // every delete failed
	RemovalNoop    RemovalOutcome = "NOOP"    // nothing to delete

	// The rule lookup itself failed; nothing is known about the rules.
	RemovalLookupFailed RemovalOutcome = "LOOKUP_FAILED"
)

// RuleFailure is one rule that could not be deleted.
type RuleFailure struct {
	RuleID     string `json:"rule_id"`
	Host       string `json:"host"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason"`
}

// RemovalResult reports one RemoveACL call.
type RemovalResult struct {
	Outcome  RemovalOutcome `json:"outcome"`
	Removed  []string       `json:"removed"`
	Failures []RuleFailure  `json:"failures,omitempty"`

	// LookupStatus is the rule lookup status when Outcome is LOOKUP_FAILED.
	LookupStatus int `json:"lookup_status,omitempty"`
}

// Clean reports whether no rule of the app can be left behind.
func (r *RemovalResult) Clean() bool {
	return r.Outcome == RemovalSuccess || r.Outcome == RemovalNoop
}

func (r *RemovalResult) settle() {
	switch {
	case len(r.Removed) == 0 && len(r.Failures) == 0:
		r.Outcome = RemovalNoop
	case len(r.Failures) == 0:
		r.Outcome = RemovalSuccess
	case len(r.Removed) == 0:
		r.Outcome = RemovalFailed
	default:
		r.Outcome = RemovalPartial
	}
}

// RemoveACL deletes every rule binding appName to db. Each failed delete is
// logged and recorded; the remaining deletes are still attempted.
func (c *ACLClient) RemoveACL(ctx context.Context, db *domain.Database, appName string) (*RemovalResult, error) {
	lookup, err := c.GetRule(ctx, db, appName)
	if err != nil {
		return nil, err
	}
	cred, err := c.cred(ctx)
	if err != nil {
		return nil, err
	}

	result := &RemovalResult{Removed: []string{}}
	if lookup.StatusCode == http.StatusNotFound {
		logger.Info("ACL rule not found",
			zap.String("database", db.Name),
			zap.String("app", appName),
		)
		result.settle()
		return result, nil
	}
	if !lookup.OK() {
		logger.Error("ACL rule lookup failed",
			zap.String("database", db.Name),
			zap.String("app", appName),
			zap.Int("status", lookup.StatusCode),
		)
		result.Outcome = RemovalLookupFailed
		result.LookupStatus = lookup.StatusCode
		return result, nil
	}

	rules, err := lookup.Rules()
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if rule.RuleID == "" {
			continue
		}
		ruleID := string(rule.RuleID)
		host := rule.Destination.ExternalDNS.Name
		logger.Debug("Removing ACL rule",
			zap.String("database", db.Name),
			zap.String("rule_id", ruleID),
			zap.String("host", host),
		)

		resp, err := send(ctx, c.http, http.MethodDelete, joinURL(cred.Endpoint, ruleID), nil, cred)
		if err != nil {
			result.Failures = append(result.Failures, RuleFailure{RuleID: ruleID, Host: host, Reason: err.Error()})
			logger.Error("ACL rule delete failed",
				zap.String("database", db.Name),
				zap.String("rule_id", ruleID),
				zap.String("host", host),
				zap.Error(err),
			)
			continue
		}
		if !resp.ok() {
			result.Failures = append(result.Failures, RuleFailure{
				RuleID:     ruleID,
				Host:       host,
				StatusCode: resp.StatusCode,
				Reason:     fmt.Sprintf("unexpected status %d", resp.StatusCode),
			})
			logger.Warn("ACL rule delete rejected",
				zap.String("database", db.Name),
				zap.String("rule_id", ruleID),
				zap.String("host", host),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}
		result.Removed = append(result.Removed, ruleID)
	}

	result.settle()
	logger.Info("ACL removal finished",
		zap.String("database", db.Name),
		zap.String("app", appName),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("removed", len(result.Removed)),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}
