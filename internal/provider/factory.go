package provider

import (
	"net/http"
	"sync"

	"dbaas.io/workflow/internal/domain"
)

// Factory hands out provider clients per environment. Each environment gets
// one client of each kind, so a credential is resolved at most once per
// (environment, kind) for the lifetime of the factory.
type Factory struct {
	source CredentialSource
	http   *http.Client

	mu    sync.Mutex
	hosts map[string]*HostProviderClient
	acls  map[string]*ACLClient
}

// NewFactory creates a Factory reading credentials from source.
func NewFactory(source CredentialSource, hc *http.Client) *Factory {
	return &Factory{
		source: source,
		http:   hc,
		hosts:  make(map[string]*HostProviderClient),
		acls:   make(map[string]*ACLClient),
	}
}

// Host returns the compute provider client for env.
func (f *Factory) Host(env *domain.Environment) *HostProviderClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := envName(env)
	if c, ok := f.hosts[key]; ok {
		return c
	}
	c := NewHostProviderClient(env, Once(f.source, env, domain.CredentialHostProvider), f.http)
	f.hosts[key] = c
	return c
}

// ACL returns the network ACL client for env.
func (f *Factory) ACL(env *domain.Environment) *ACLClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := envName(env)
	if c, ok := f.acls[key]; ok {
		return c
	}
	c := NewACLClient(env, Once(f.source, env, domain.CredentialACL), f.http)
	f.acls[key] = c
	return c
}
