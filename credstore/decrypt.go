package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
)

// AESGCMDecryptor is the default Decryptor backend: AES-256-GCM with a key
// derived from a passphrase/host secret via SHA-256. A TPM-backed Decryptor
// (sealing to PCR state) is deliberately not wired — see DESIGN.md for why
// github.com/canonical/go-tpm2 has no SPEC_FULL.md component to serve.
type AESGCMDecryptor struct {
	Key []byte // must be 16, 24, or 32 bytes
}

// NewAESGCMDecryptor derives a 32-byte key from an arbitrary-length secret.
func NewAESGCMDecryptor(secret []byte) *AESGCMDecryptor {
	key := sha256.Sum256(secret)
	return &AESGCMDecryptor{Key: key[:]}
}

// Decrypt expects ciphertext laid out as nonce || sealed-box, matching the
// encrypted-credential envelope format (§4.5).
func (d *AESGCMDecryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(d.Key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext shorter than nonce size")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return plain, nil
}
