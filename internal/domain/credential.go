package domain

// CredentialKind identifies which external service a credential is for.
type CredentialKind string

const (
	CredentialHostProvider CredentialKind = "HOST_PROVIDER"
	CredentialACL          CredentialKind = "ACLFROMHELL"
)

// Credential is the environment-scoped access material for one provider.
type Credential struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Project  string `json:"project" yaml:"project"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"-" yaml:"password"`
}
