package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

const hmacAlgorithm = "HMAC-SHA256"

// HMACSigner implements Signer with HMAC-SHA256 over keyed secrets. Multiple
// keys may be registered so signatures survive key rotation: Verify selects
// the key named in the signature.
type HMACSigner struct {
	activeKeyID string
	keys        map[string][]byte
	now         func() time.Time
}

// NewHMACSigner creates a signer that signs with the active key. keys maps
// key id to secret; activeKeyID must be present in it.
func NewHMACSigner(activeKeyID string, keys map[string][]byte) (*HMACSigner, error) {
	if _, ok := keys[activeKeyID]; !ok {
		return nil, faults.New(faults.KindInvalidOperation, "active key id not present in key set")
	}
	copied := make(map[string][]byte, len(keys))
	for id, secret := range keys {
		copied[id] = append([]byte(nil), secret...)
	}
	return &HMACSigner{activeKeyID: activeKeyID, keys: copied, now: time.Now}, nil
}

func (s *HMACSigner) Sign(ctx context.Context, payload []byte) (Signature, error) {
	mac := hmac.New(sha256.New, s.keys[s.activeKeyID])
	mac.Write(payload)
	return Signature{
		KeyID:     s.activeKeyID,
		Algorithm: hmacAlgorithm,
		SignedAt:  s.now().Unix(),
		Value:     mac.Sum(nil),
	}, nil
}

func (s *HMACSigner) Verify(ctx context.Context, payload []byte, sig Signature) error {
	if sig.Algorithm != hmacAlgorithm {
		return faults.Newf(faults.KindNotSupported, "unsupported signature algorithm %q", sig.Algorithm)
	}
	secret, ok := s.keys[sig.KeyID]
	if !ok {
		return faults.Newf(faults.KindUnauthorized, "unknown signing key %q", sig.KeyID)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), sig.Value) {
		return faults.New(faults.KindUnauthorized, "signature mismatch")
	}
	return nil
}
