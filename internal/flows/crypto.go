package flows

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrDecryptFailed marks any failure while opening an encrypted envelope:
// bad base64, wrong key size, GCM tag mismatch. Callers must treat it as a
// validation failure, never as a crash.
var ErrDecryptFailed = errors.New("flows: decrypt failed")

const gcmTagSize = 16

// Envelope is the three-field encrypted request shape. A request is treated
// as encrypted iff all three fields are present.
type Envelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// Encrypted reports whether the request carries the full encrypted envelope.
func (e Envelope) Encrypted() bool {
	return e.EncryptedFlowData != "" && e.EncryptedAESKey != "" && e.InitialVector != ""
}

// Crypter decrypts flow requests and encrypts responses with the session key
// recovered from the request.
type Crypter struct {
	key *rsa.PrivateKey
}

// NewCrypter parses a PEM-encoded RSA private key (PKCS#8 or PKCS#1).
func NewCrypter(privateKeyPEM string) (*Crypter, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("flows: no PEM block in private key")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("flows: private key is not RSA")
		}
		return &Crypter{key: rsaKey}, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("flows: parse private key: %w", err)
	}
	return &Crypter{key: rsaKey}, nil
}

// Session carries the per-request symmetric material the response must reuse.
type Session struct {
	AESKey []byte
	IV     []byte
}

// Decrypt unwraps the AES key with RSA-OAEP (SHA-256, empty label) and opens
// the AES-128-GCM payload, where the trailing 16 bytes of the decoded data
// are the authentication tag.
func (c *Crypter) Decrypt(env Envelope) ([]byte, Session, error) {
	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: aes key encoding: %v", ErrDecryptFailed, err)
	}
	aesKey, err := rsa.DecryptOAEP(sha256.New(), nil, c.key, wrappedKey, nil)
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: unwrap aes key: %v", ErrDecryptFailed, err)
	}
	if len(aesKey) != 16 {
		return nil, Session{}, fmt.Errorf("%w: unexpected aes key size %d", ErrDecryptFailed, len(aesKey))
	}

	iv, err := base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: iv encoding: %v", ErrDecryptFailed, err)
	}
	data, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: payload encoding: %v", ErrDecryptFailed, err)
	}
	if len(data) <= gcmTagSize {
		return nil, Session{}, fmt.Errorf("%w: payload too short", ErrDecryptFailed)
	}

	gcm, err := newGCM(aesKey, len(iv))
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	plaintext, err := gcm.Open(nil, iv, data, nil)
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: open payload: %v", ErrDecryptFailed, err)
	}
	return plaintext, Session{AESKey: aesKey, IV: iv}, nil
}

// Encrypt seals a response with the request's AES key and the bit-flipped
// request IV (every byte XOR 0xFF), per protocol convention, returning
// base64(ciphertext || tag).
func (c *Crypter) Encrypt(response []byte, sess Session) (string, error) {
	flipped := make([]byte, len(sess.IV))
	for i, b := range sess.IV {
		flipped[i] = b ^ 0xFF
	}
	gcm, err := newGCM(sess.AESKey, len(flipped))
	if err != nil {
		return "", fmt.Errorf("flows: encrypt response: %w", err)
	}
	sealed := gcm.Seal(nil, flipped, response, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if nonceSize <= 0 {
		return nil, errors.New("empty iv")
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}
