package hakanaicrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce
	hashSize  = 16 // truncated content hash, 128 bits
)

// payload is the JSON object encrypted inside the envelope. Data is a
// pointer so a present-but-empty string is distinguishable from a
// missing field.
type payload struct {
	Data     *string `json:"data"`
	Filename *string `json:"filename"`
}

// EncryptPayload implements C1's encrypt_payload operation: it builds
// the plaintext JSON envelope, computes the truncated content hash,
// generates a fresh key and nonce, and seals the result with
// AES-256-GCM. Returned strings are ciphertext (base64-std), key
// (base64url, unpadded) and hash (base64url, unpadded).
func EncryptPayload(data []byte, filename *string) (ciphertextB64 string, keyB64 string, hashB64 string, err error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	plaintext, err := json.Marshal(payload{
		Data:     &encoded,
		Filename: filename,
	})
	if err != nil {
		return "", "", "", fmt.Errorf("marshal payload: %w", err)
	}
	defer zero(plaintext)

	sum := sha256.Sum256(plaintext)
	hashB64 = base64.RawURLEncoding.EncodeToString(sum[:hashSize])

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", "", "", fmt.Errorf("generate key: %w", err)
	}
	defer zero(key)

	aead, err := newAEAD(key)
	if err != nil {
		return "", "", "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	envelope := aead.Seal(nonce, nonce, plaintext, nil)
	ciphertextB64 = base64.StdEncoding.EncodeToString(envelope)
	keyB64 = base64.RawURLEncoding.EncodeToString(key)
	return ciphertextB64, keyB64, hashB64, nil
}

// DecryptPayload implements C1's decrypt_payload operation. expectedHash
// is optional (pass nil to skip the integrity check, e.g. when the
// caller has already verified it separately).
func DecryptPayload(ciphertextB64 string, key []byte, expectedHash []byte) (data []byte, filename *string, err error) {
	if len(key) != keySize {
		return nil, nil, ErrInvalidKeyLength
	}

	envelope, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, nil, ErrBase64
	}
	if len(envelope) < nonceSize {
		return nil, nil, ErrInvalidEncryptedData
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, ct := envelope[:nonceSize], envelope[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		// Wrong key and tampered ciphertext must be indistinguishable.
		return nil, nil, ErrDecryptionFailed
	}
	defer zero(plaintext)

	if expectedHash != nil {
		sum := sha256.Sum256(plaintext)
		if !constantTimeEqual(sum[:hashSize], expectedHash) {
			return nil, nil, ErrHashMismatch
		}
	}

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil || p.Data == nil {
		return nil, nil, ErrInvalidPayload
	}

	data, err = base64.StdEncoding.DecodeString(*p.Data)
	if err != nil {
		return nil, nil, ErrInvalidPayload
	}

	return data, p.Filename, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// zero overwrites a byte slice in place. It does not guarantee the
// compiler won't have left copies elsewhere, but it matches the
// zeroization contract every other client in the corpus observes.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
