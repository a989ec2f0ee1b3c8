// Package security provides the message security hooks: payload encryption,
// payload signing, credential authentication and permission-based
// authorization. All failures classify as faults so policy decisions stay
// deterministic.
package security

import (
	"context"
)

// Encryptor protects a payload at rest and in transit.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Signer authenticates a payload's origin and integrity.
type Signer interface {
	// Sign returns a detached signature over payload.
	Sign(ctx context.Context, payload []byte) (Signature, error)

	// Verify checks a detached signature. It returns nil only for a
	// signature produced over exactly this payload with a known key.
	Verify(ctx context.Context, payload []byte, sig Signature) error
}

// Signature is a detached payload signature with the metadata needed to
// verify it later: which key signed and when.
type Signature struct {
	KeyID     string
	Algorithm string
	SignedAt  int64
	Value     []byte
}

// Principal is an authenticated identity with its granted permissions.
type Principal struct {
	Subject     string
	Permissions []string
	Claims      map[string]string
}

// HasPermission reports whether the principal holds permission.
func (p *Principal) HasPermission(permission string) bool {
	for _, granted := range p.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

// Authenticator resolves credentials to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, subject, secret string) (*Principal, error)
}

// Authorizer decides whether a principal may perform an operation on a
// message type.
type Authorizer interface {
	Authorize(ctx context.Context, principal *Principal, operation, messageType string) error
}
