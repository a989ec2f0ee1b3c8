package security

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

// DefaultBcryptCost balances hashing time against brute-force resistance.
const DefaultBcryptCost = 10

// BcryptAuthenticator implements Authenticator against an in-process account
// registry of bcrypt-hashed secrets.
type BcryptAuthenticator struct {
	mu       sync.RWMutex
	cost     int
	accounts map[string]account
}

type account struct {
	hash        []byte
	permissions []string
	claims      map[string]string
}

// NewBcryptAuthenticator creates an empty authenticator at the default cost.
func NewBcryptAuthenticator() *BcryptAuthenticator {
	return &BcryptAuthenticator{
		cost:     DefaultBcryptCost,
		accounts: make(map[string]account),
	}
}

// WithCost sets the bcrypt cost for subsequently registered accounts,
// clamped to the bcrypt limits.
func (a *BcryptAuthenticator) WithCost(cost int) *BcryptAuthenticator {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	a.cost = cost
	return a
}

// Register stores an account with its secret hashed.
func (a *BcryptAuthenticator) Register(subject, secret string, permissions []string, claims map[string]string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), a.cost)
	if err != nil {
		return faults.Wrap(faults.KindInvalidOperation, err)
	}

	a.mu.Lock()
	a.accounts[subject] = account{
		hash:        hash,
		permissions: append([]string(nil), permissions...),
		claims:      claims,
	}
	a.mu.Unlock()
	return nil
}

func (a *BcryptAuthenticator) Authenticate(ctx context.Context, subject, secret string) (*Principal, error) {
	a.mu.RLock()
	acct, ok := a.accounts[subject]
	a.mu.RUnlock()

	// Unknown subjects and wrong secrets fail identically.
	if !ok {
		return nil, faults.New(faults.KindUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(secret)); err != nil {
		return nil, faults.New(faults.KindUnauthorized, "invalid credentials")
	}

	return &Principal{
		Subject:     subject,
		Permissions: append([]string(nil), acct.permissions...),
		Claims:      acct.claims,
	}, nil
}

// DenialError reports a failed authorization with the permission that was
// missing.
type DenialError struct {
	Subject            string
	Operation          string
	MessageType        string
	RequiredPermission string
}

func (e *DenialError) Error() string {
	return "authorization denied: " + e.Subject + " lacks " + e.RequiredPermission
}

// FaultKind classifies denials as unauthorized.
func (e *DenialError) FaultKind() faults.Kind { return faults.KindUnauthorized }

// PolicyAuthorizer implements Authorizer over an operation-to-permission
// policy table. The required permission for an operation on a message type
// is "operation:messageType".
type PolicyAuthorizer struct{}

// NewPolicyAuthorizer creates the standard permission-string authorizer.
func NewPolicyAuthorizer() *PolicyAuthorizer {
	return &PolicyAuthorizer{}
}

func (PolicyAuthorizer) Authorize(ctx context.Context, principal *Principal, operation, messageType string) error {
	if principal == nil {
		return faults.New(faults.KindUnauthorized, "no principal")
	}

	required := operation + ":" + messageType
	if principal.HasPermission(required) || principal.HasPermission(operation+":*") {
		return nil
	}
	return &DenialError{
		Subject:            principal.Subject,
		Operation:          operation,
		MessageType:        messageType,
		RequiredPermission: required,
	}
}
