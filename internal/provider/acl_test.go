package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
)

var ordersDB = &domain.Database{ID: 7, Name: "orders", InfraID: 1, EngineType: "mysql"}

func newACLClient(t *testing.T, handler http.Handler) *ACLClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cred := Static(domain.Credential{Endpoint: srv.URL, Project: "dbaas", User: "acl", Password: "secret"})
	return NewACLClient(prodEnv, cred, NewHTTPClient(2*time.Second))
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))
	return logs
}

func newAuthMockACL() *MockACL {
	mock := NewMockACL()
	mock.User = "acl"
	mock.Password = "secret"
	return mock
}

func TestACLClient_MissingCredentialIsFatal(t *testing.T) {
	failing := func(context.Context) (*domain.Credential, error) {
		return nil, ErrCredentialNotFound
	}
	client := NewACLClient(prodEnv, failing, NewHTTPClient(time.Second))

	_, err := client.AddACL(context.Background(), ordersDB, "checkout", "db-1.example")
	require.True(t, apperrors.HasCode(err, apperrors.CodeACLCredentialNotFound))
	require.ErrorIs(t, err, ErrCredentialNotFound)
	require.Contains(t, err.Error(), "credential ACLFROMHELL for env prod not found")

	_, err = client.GetRule(context.Background(), ordersDB, "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeACLCredentialNotFound))

	_, err = client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.True(t, apperrors.HasCode(err, apperrors.CodeACLCredentialNotFound))
}

func TestACLClient_CredentialStoreOutage(t *testing.T) {
	outage := errors.New("connection reset")
	failing := func(context.Context) (*domain.Credential, error) {
		return nil, outage
	}
	client := NewACLClient(prodEnv, failing, NewHTTPClient(time.Second))

	_, err := client.AddACL(context.Background(), ordersDB, "checkout", "db-1.example")
	require.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable))
	require.False(t, apperrors.HasCode(err, apperrors.CodeACLCredentialNotFound))
	require.ErrorIs(t, err, outage)

	_, err = client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable))
}

func TestACLClient_AddACL(t *testing.T) {
	logs := observeLogs(t)
	mock := newAuthMockACL()
	client := newACLClient(t, mock)

	res, err := client.AddACL(context.Background(), ordersDB, "checkout", "db-1.example")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, "db-1.example", res.Hostname)
	require.Equal(t, []string{"1"}, mock.RuleIDs())

	statusLogs := logs.FilterMessage("ACL add status").All()
	require.Len(t, statusLogs, 1)
	require.EqualValues(t, 201, statusLogs[0].ContextMap()["status"])

	payloads := mock.Payloads()
	require.Len(t, payloads, 1)
	require.JSONEq(t, `{
		"source": {"tsuruapp": {"appname": "checkout"}},
		"destination": {"externaldns": {"name": "db-1.example", "ports": [{"protocol": "tcp", "port": 3306}]}},
		"target": "accept",
		"metadata": {"owner": "dbaas", "service-name": "dbaas", "instance-name": "orders"}
	}`, string(payloads[0]))
}

func TestACLClient_AddACLPortsFollowEngine(t *testing.T) {
	mock := newAuthMockACL()
	client := newACLClient(t, mock)

	redis := &domain.Database{ID: 8, Name: "cache", EngineType: "redis"}
	_, err := client.AddACL(context.Background(), redis, "checkout", "redis-1.example")
	require.NoError(t, err)

	var payload aclPayload
	require.NoError(t, json.Unmarshal(mock.Payloads()[0], &payload))
	require.Equal(t, []aclPort{{Protocol: "tcp", Port: 6379}, {Protocol: "tcp", Port: 26379}}, payload.Destination.ExternalDNS.Ports)
}

func TestACLClient_AddACLRejected(t *testing.T) {
	logs := observeLogs(t)
	mock := newAuthMockACL()
	mock.SetAddStatus(http.StatusConflict)
	client := newACLClient(t, mock)

	res, err := client.AddACL(context.Background(), ordersDB, "checkout", "db-1.example")
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Contains(t, res.Body, "rule rejected")
	require.Empty(t, mock.RuleIDs())

	require.Equal(t, 1, logs.FilterMessage("ACL bind rejected").Len())
	require.Equal(t, 1, logs.FilterMessage("ACL add status").Len())
}

func TestACLClient_BasicAuth(t *testing.T) {
	mock := newAuthMockACL()
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	wrong := NewACLClient(prodEnv, Static(domain.Credential{Endpoint: srv.URL, User: "acl", Password: "nope"}), NewHTTPClient(time.Second))
	res, err := wrong.AddACL(context.Background(), ordersDB, "checkout", "db-1.example")
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestACLClient_GetRule(t *testing.T) {
	var query map[string][]string
	client := newACLClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		writeJSON(w, http.StatusOK, []map[string]any{
			{"RuleID": 12, "Destination": map[string]any{"ExternalDNS": map[string]any{"Name": "db-1.example"}}},
			{"RuleID": "ab-3", "Destination": map[string]any{"ExternalDNS": map[string]any{"Name": "db-2.example"}}},
		})
	}))

	lookup, err := client.GetRule(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.True(t, lookup.OK())
	require.Equal(t, map[string][]string{
		"metadata.owner":          {"dbaas"},
		"metadata.service-name":   {"dbaas"},
		"metadata.instance-name":  {"orders"},
		"source.tsuruapp.appname": {"checkout"},
	}, query)

	rules, err := lookup.Rules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, RuleID("12"), rules[0].RuleID)
	require.Equal(t, RuleID("ab-3"), rules[1].RuleID)
	require.Equal(t, "db-2.example", rules[1].Destination.ExternalDNS.Name)

	_, err = client.GetRule(context.Background(), ordersDB, "")
	require.NoError(t, err)
	require.NotContains(t, query, "source.tsuruapp.appname")
}

func TestACLClient_EndpointWithQuery(t *testing.T) {
	var lookups []map[string][]string
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = append(deleted, r.URL.Path+"?"+r.URL.RawQuery)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		lookups = append(lookups, r.URL.Query())
		writeJSON(w, http.StatusOK, []map[string]any{{"RuleID": "10", "Destination": map[string]any{}}})
	}))
	t.Cleanup(srv.Close)
	cred := Static(domain.Credential{Endpoint: srv.URL + "/?region=eu", Project: "dbaas"})
	client := NewACLClient(prodEnv, cred, NewHTTPClient(2*time.Second))

	res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.Equal(t, RemovalSuccess, res.Outcome)

	require.Len(t, lookups, 1)
	require.Equal(t, []string{"eu"}, lookups[0]["region"])
	require.Equal(t, []string{"orders"}, lookups[0]["metadata.instance-name"])
	require.Equal(t, []string{"checkout"}, lookups[0]["source.tsuruapp.appname"])
	require.Equal(t, []string{"/10?region=eu"}, deleted)
}

func TestACLClient_RemoveACL(t *testing.T) {
	mock := newAuthMockACL()
	mock.SeedRule("10", "orders", "checkout", "db-1.example")
	mock.SeedRule("11", "orders", "checkout", "db-2.example")
	mock.SeedRule("12", "orders", "billing", "db-1.example")
	client := newACLClient(t, mock)

	res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.Equal(t, RemovalSuccess, res.Outcome)
	require.Equal(t, []string{"10", "11"}, res.Removed)
	require.Empty(t, res.Failures)
	require.Equal(t, []string{"12"}, mock.RuleIDs())
}

func TestACLClient_RemoveACLPartial(t *testing.T) {
	logs := observeLogs(t)
	mock := newAuthMockACL()
	mock.SeedRule("10", "orders", "checkout", "db-1.example")
	mock.SeedRule("11", "orders", "checkout", "db-2.example")
	mock.FailDelete("10", http.StatusInternalServerError)
	client := newACLClient(t, mock)

	res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.Equal(t, RemovalPartial, res.Outcome)
	require.Equal(t, []string{"11"}, res.Removed)
	require.Len(t, res.Failures, 1)
	require.Equal(t, "10", res.Failures[0].RuleID)
	require.Equal(t, "db-1.example", res.Failures[0].Host)
	require.Equal(t, http.StatusInternalServerError, res.Failures[0].StatusCode)
	require.Equal(t, []string{"10"}, mock.RuleIDs())

	require.Equal(t, 1, logs.FilterMessage("ACL rule delete rejected").Len())
	finished := logs.FilterMessage("ACL removal finished").All()
	require.Len(t, finished, 1)
	require.Equal(t, "PARTIAL", finished[0].ContextMap()["outcome"])
}

func TestACLClient_RemoveACLAllFail(t *testing.T) {
	mock := newAuthMockACL()
	mock.SeedRule("10", "orders", "checkout", "db-1.example")
	mock.FailDelete("10", http.StatusBadGateway)
	client := newACLClient(t, mock)

	res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.Equal(t, RemovalFailed, res.Outcome)
	require.Empty(t, res.Removed)
}

func TestACLClient_RemoveACLNoop(t *testing.T) {
	t.Run("no rules", func(t *testing.T) {
		client := newACLClient(t, newAuthMockACL())
		res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
		require.NoError(t, err)
		require.Equal(t, RemovalNoop, res.Outcome)
	})

	t.Run("lookup not found", func(t *testing.T) {
		logs := observeLogs(t)
		client := newACLClient(t, http.NotFoundHandler())
		res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
		require.NoError(t, err)
		require.Equal(t, RemovalNoop, res.Outcome)
		require.Equal(t, 1, logs.FilterMessage("ACL rule not found").Len())
	})
}

func TestACLClient_RemoveACLLookupFailed(t *testing.T) {
	logs := observeLogs(t)
	client := newACLClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))

	res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.Equal(t, RemovalLookupFailed, res.Outcome)
	require.Equal(t, http.StatusInternalServerError, res.LookupStatus)
	require.False(t, res.Clean())
	require.Empty(t, res.Removed)
	require.Equal(t, 1, logs.FilterMessage("ACL rule lookup failed").Len())
	require.Zero(t, logs.FilterMessage("ACL rule not found").Len())
}

func TestACLClient_RemoveACLSkipsRulesWithoutID(t *testing.T) {
	var deletes int
	client := newACLClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deletes++
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"RuleID": "", "Destination": map[string]any{}},
			{"RuleID": "5", "Destination": map[string]any{}},
		})
	}))

	res, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.NoError(t, err)
	require.Equal(t, 1, deletes)
	require.Equal(t, []string{"5"}, res.Removed)
}

func TestACLClient_TransportErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := NewACLClient(prodEnv, Static(domain.Credential{Endpoint: endpoint}), NewHTTPClient(time.Second))

	_, err := client.AddACL(context.Background(), ordersDB, "checkout", "db-1.example")
	require.True(t, apperrors.HasCode(err, apperrors.CodeProviderUnreachable))

	_, err = client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.True(t, apperrors.HasCode(err, apperrors.CodeProviderUnreachable))
}

func TestACLClient_BadLookupBody(t *testing.T) {
	client := newACLClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"not": "a list"})
	}))

	_, err := client.RemoveACL(context.Background(), ordersDB, "checkout")
	require.True(t, apperrors.HasCode(err, apperrors.CodeProviderBadResponse))
}
