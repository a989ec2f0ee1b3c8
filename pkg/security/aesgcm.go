package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

// AESGCMEncryptor implements Encryptor with AES-GCM. The output layout is
// nonce followed by ciphertext-with-tag, as produced by GCM Seal.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCMEncryptor creates an encryptor from a 16-, 24- or 32-byte key.
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, faults.Wrap(faults.KindInvalidOperation, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, faults.Wrap(faults.KindInvalidOperation, err)
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

func (e *AESGCMEncryptor) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, faults.Wrap(faults.KindIO, err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *AESGCMEncryptor) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, faults.New(faults.KindFormat, "ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Tampered or wrong-key ciphertext.
		return nil, faults.Wrap(faults.KindUnauthorized, err)
	}
	return plaintext, nil
}
