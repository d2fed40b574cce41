package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
)

// MockHostProvider is an in-memory compute provider API for tests and
// local runs. Serve it with httptest.NewServer.
type MockHostProvider struct {
	vms       map[string]map[string]any // key: identifier
	offerings map[string]string         // key: cpus/memory
	mu        sync.RWMutex
	mux       *http.ServeMux
}

// NewMockHostProvider creates an empty MockHostProvider.
func NewMockHostProvider() *MockHostProvider {
	p := &MockHostProvider{
		vms:       make(map[string]map[string]any),
		offerings: make(map[string]string),
		mux:       http.NewServeMux(),
	}
	p.mux.HandleFunc("GET /{project}/{env}/host/{identifier}", p.getVM)
	p.mux.HandleFunc("GET /{project}/{env}/credential/{cpus}/{memory}", p.getOffering)
	return p
}

// SeedVM registers a VM body for identifier.
func (p *MockHostProvider) SeedVM(identifier string, props map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vms[identifier] = props
}

// SeedOffering registers an offering for a cpus/memory pair.
func (p *MockHostProvider) SeedOffering(cpus, memory int, offeringID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offerings[fmt.Sprintf("%d/%d", cpus, memory)] = offeringID
}

// Reset clears all mock data.
func (p *MockHostProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vms = make(map[string]map[string]any)
	p.offerings = make(map[string]string)
}

func (p *MockHostProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

func (p *MockHostProvider) getVM(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	vm, ok := p.vms[r.PathValue("identifier")]
	p.mu.RUnlock()
	if !ok {
		http.Error(w, `{"error":"vm not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (p *MockHostProvider) getOffering(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	id, ok := p.offerings[r.PathValue("cpus")+"/"+r.PathValue("memory")]
	p.mu.RUnlock()
	if !ok {
		http.Error(w, `{"error":"offering not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"offering_id": id})
}

// MockACL is an in-memory network ACL API. It enforces basic auth when
// User is set.
type MockACL struct {
	User     string
	Password string

	rules      map[string]mockRule // key: rule id
	nextID     int
	addStatus  int
	failDelete map[string]int // rule id -> forced status
	payloads   []json.RawMessage
	mu         sync.Mutex
	mux        *http.ServeMux
}

type mockRule struct {
	ID       string
	App      string
	Instance string
	Service  string
	Host     string
}

// NewMockACL creates an empty MockACL that accepts new rules with 201.
func NewMockACL() *MockACL {
	a := &MockACL{
		rules:      make(map[string]mockRule),
		addStatus:  http.StatusCreated,
		failDelete: make(map[string]int),
		mux:        http.NewServeMux(),
	}
	a.mux.HandleFunc("GET /{$}", a.list)
	a.mux.HandleFunc("POST /{$}", a.add)
	a.mux.HandleFunc("DELETE /{id}", a.remove)
	return a
}

// SeedRule registers an existing rule.
func (a *MockACL) SeedRule(id, instance, app, host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules[id] = mockRule{ID: id, App: app, Instance: instance, Host: host}
}

// SetAddStatus makes POST answer with status.
func (a *MockACL) SetAddStatus(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addStatus = status
}

// FailDelete makes DELETE of rule id answer with status.
func (a *MockACL) FailDelete(id string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failDelete[id] = status
}

// RuleIDs lists the rules currently stored.
func (a *MockACL) RuleIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.rules))
	for id := range a.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Payloads returns the bodies of every POST received.
func (a *MockACL) Payloads() []json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]json.RawMessage(nil), a.payloads...)
}

func (a *MockACL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.User != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != a.User || pass != a.Password {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
	}
	a.mux.ServeHTTP(w, r)
}

func (a *MockACL) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	instance := q.Get("metadata.instance-name")
	app := q.Get("source.tsuruapp.appname")

	a.mu.Lock()
	out := make([]map[string]any, 0)
	for _, rule := range a.rules {
		if rule.Instance != instance || (app != "" && rule.App != app) {
			continue
		}
		out = append(out, map[string]any{
			"RuleID":      rule.ID,
			"Destination": map[string]any{"ExternalDNS": map[string]any{"Name": rule.Host}},
		})
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i]["RuleID"].(string) < out[j]["RuleID"].(string) })
	writeJSON(w, http.StatusOK, out)
}

func (a *MockACL) add(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var payload aclPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads = append(a.payloads, body)
	if a.addStatus < 200 || a.addStatus >= 300 {
		http.Error(w, `{"error":"rule rejected"}`, a.addStatus)
		return
	}
	a.nextID++
	id := strconv.Itoa(a.nextID)
	a.rules[id] = mockRule{
		ID:       id,
		App:      payload.Source.TsuruApp.AppName,
		Instance: payload.Metadata["instance-name"],
		Service:  payload.Metadata["service-name"],
		Host:     payload.Destination.ExternalDNS.Name,
	}
	writeJSON(w, a.addStatus, map[string]string{"RuleID": id})
}

func (a *MockACL) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	a.mu.Lock()
	defer a.mu.Unlock()
	if status, ok := a.failDelete[id]; ok {
		http.Error(w, `{"error":"delete failed"}`, status)
		return
	}
	if _, ok := a.rules[id]; !ok {
		http.Error(w, `{"error":"rule not found"}`, http.StatusNotFound)
		return
	}
	delete(a.rules, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
