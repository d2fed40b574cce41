package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"dbaas.io/workflow/internal/domain"
)

// ErrCredentialNotFound is wrapped by CredentialSource implementations when
// no credential exists for the (environment, kind) pair.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialSource looks up environment-scoped provider credentials.
type CredentialSource interface {
	Credential(ctx context.Context, env *domain.Environment, kind domain.CredentialKind) (*domain.Credential, error)
}

// CredentialFunc resolves the credential a client uses.
type CredentialFunc func(ctx context.Context) (*domain.Credential, error)

// Once returns a CredentialFunc that asks source on first use and reuses a
// successful answer afterwards. Failures are not cached. Each call to Once
// has its own cache; nothing is shared between clients.
func Once(source CredentialSource, env *domain.Environment, kind domain.CredentialKind) CredentialFunc {
	var (
		mu     sync.Mutex
		cached *domain.Credential
	)
	return func(ctx context.Context) (*domain.Credential, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		cred, err := source.Credential(ctx, env, kind)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, fmt.Errorf("%s for env %s: %w", kind, envName(env), ErrCredentialNotFound)
		}
		cached = cred
		return cached, nil
	}
}

// Static always returns cred.
func Static(cred domain.Credential) CredentialFunc {
	return func(context.Context) (*domain.Credential, error) {
		c := cred
		return &c, nil
	}
}

func envName(env *domain.Environment) string {
	if env == nil {
		return "<nil>"
	}
	return env.Name
}

// credentialsFile is the on-disk layout:
//
//	environments:
//	  prod:
//	    HOST_PROVIDER: {endpoint: ..., project: ..., user: ..., password: ...}
//	    ACLFROMHELL:   {endpoint: ..., project: ..., user: ..., password: ...}
type credentialsFile struct {
	Environments map[string]map[domain.CredentialKind]domain.Credential `yaml:"environments"`
}

// FileCredentialSource serves credentials from a YAML document loaded once.
type FileCredentialSource struct {
	byEnv map[string]map[domain.CredentialKind]domain.Credential
}

var _ CredentialSource = (*FileCredentialSource)(nil)

// LoadCredentialsFile reads a FileCredentialSource from path.
func LoadCredentialsFile(path string) (*FileCredentialSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()
	return ParseCredentials(f)
}

// ParseCredentials decodes a credentials document. Environment names are
// matched case-insensitively.
func ParseCredentials(r io.Reader) (*FileCredentialSource, error) {
	var doc credentialsFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}

	src := &FileCredentialSource{byEnv: make(map[string]map[domain.CredentialKind]domain.Credential, len(doc.Environments))}
	for env, kinds := range doc.Environments {
		for kind, cred := range kinds {
			if strings.TrimSpace(cred.Endpoint) == "" {
				return nil, fmt.Errorf("credential %s for env %s: endpoint is required", kind, env)
			}
		}
		src.byEnv[strings.ToLower(env)] = kinds
	}
	return src, nil
}

// Credential implements CredentialSource.
func (s *FileCredentialSource) Credential(_ context.Context, env *domain.Environment, kind domain.CredentialKind) (*domain.Credential, error) {
	if env == nil {
		return nil, fmt.Errorf("%s without environment: %w", kind, ErrCredentialNotFound)
	}
	cred, ok := s.byEnv[strings.ToLower(env.Name)][kind]
	if !ok {
		return nil, fmt.Errorf("%s for env %s: %w", kind, env.Name, ErrCredentialNotFound)
	}
	return &cred, nil
}
