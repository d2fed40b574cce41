package store

import (
	"context"
	"fmt"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/provider"
)

// CredentialSource serves provider credentials from the credential table.
type CredentialSource struct {
	reader CredentialReader
}

var _ provider.CredentialSource = (*CredentialSource)(nil)

// NewCredentialSource wraps a CredentialReader.
func NewCredentialSource(reader CredentialReader) *CredentialSource {
	return &CredentialSource{reader: reader}
}

// Credential implements provider.CredentialSource. A missing row is reported
// as provider.ErrCredentialNotFound; other store errors pass through.
func (s *CredentialSource) Credential(ctx context.Context, env *domain.Environment, kind domain.CredentialKind) (*domain.Credential, error) {
	if env == nil {
		return nil, fmt.Errorf("%s without environment: %w", kind, provider.ErrCredentialNotFound)
	}
	cred, err := s.reader.Credential(ctx, env.ID, kind)
	if IsNotFound(err) {
		return nil, fmt.Errorf("%s for env %s: %w", kind, env.Name, provider.ErrCredentialNotFound)
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}
