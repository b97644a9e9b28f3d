package interfaces

import "context"

// CredentialVault resolves plaintext credential fields at use time. Callers
// never persist what it returns.
type CredentialVault interface {
	// Resolve returns the fields for a credential of the given kind
	// ("site-login", "instapaper"). Unknown credentials are an error.
	Resolve(ctx context.Context, kind, credentialID string) (map[string]string, error)
}
