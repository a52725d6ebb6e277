package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrBadKeyMaterial is returned when the configured public key cannot be
// parsed into an RSA key.
var ErrBadKeyMaterial = errors.New("signing: malformed RSA public key material")

// pkcs1Overhead is the PKCS#1 v1.5 padding cost per encrypted block.
const pkcs1Overhead = 11

// Encryptor produces the provider's chunked-RSA payload encoding: the JSON
// plaintext is split into windows sized to the key modulus, each window is
// encrypted independently, and the concatenated ciphertext is base64-encoded
// once. Decryption happens on the provider side only.
type Encryptor struct {
	pub *rsa.PublicKey
}

// NewEncryptor parses a PEM-encoded RSA public key (PKIX or PKCS#1).
func NewEncryptor(pemData []byte) (*Encryptor, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrBadKeyMaterial)
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrBadKeyMaterial)
		}
		return &Encryptor{pub: rsaKey}, nil
	}

	rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyMaterial, err)
	}
	return &Encryptor{pub: rsaKey}, nil
}

// BlockSize is the maximum plaintext window per RSA block. It is derived
// from the configured key's modulus, never hardcoded: a fixed constant
// would silently corrupt payloads if the key size ever changed.
func (e *Encryptor) BlockSize() int {
	return e.pub.Size() - pkcs1Overhead
}

// Encrypt JSON-serializes v and encrypts it with the chunked scheme.
// For plaintext length L and block size B the output decodes to exactly
// ceil(L/B) ciphertext blocks of modulus size each.
func (e *Encryptor) Encrypt(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal encryption payload: %w", err)
	}
	return e.EncryptBytes(plaintext)
}

// EncryptBytes encrypts an already-serialized plaintext.
func (e *Encryptor) EncryptBytes(plaintext []byte) (string, error) {
	blockSize := e.BlockSize()
	ciphertext := make([]byte, 0, ((len(plaintext)/blockSize)+1)*e.pub.Size())

	for start := 0; start < len(plaintext); start += blockSize {
		end := start + blockSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		block, err := rsa.EncryptPKCS1v15(rand.Reader, e.pub, plaintext[start:end])
		if err != nil {
			return "", fmt.Errorf("encrypt block at offset %d: %w", start, err)
		}
		ciphertext = append(ciphertext, block...)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
