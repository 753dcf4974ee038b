// Package flows implements the encrypted form-exchange channel: the payload
// crypto for flow data requests and the signed session tokens that bind a
// form session back to the originating conversation.
package flows

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken marks any malformed, tampered, or incomplete token.
	ErrInvalidToken = errors.New("flows: invalid token")
	// ErrSecretRequired fires when signed tokens are required but no signing
	// secret is configured.
	ErrSecretRequired = errors.New("flows: token signing secret required")
)

const tokenPrefix = "v1."

// TokenClaims is the verified identity carried by a flow token.
type TokenClaims struct {
	ClinicID string
	Phone    string
	Extra    string
	IssuedAt time.Time
	Legacy   bool
}

// TokenCodec issues and verifies flow tokens. With a secret configured it
// produces signed v1 tokens; without one it degrades to the legacy unsigned
// colon-delimited format, but only when legacy mode is allowed.
type TokenCodec struct {
	secret      []byte
	allowLegacy bool
}

func NewTokenCodec(secret string, allowLegacy bool) *TokenCodec {
	var key []byte
	if s := strings.TrimSpace(secret); s != "" {
		key = []byte(s)
	}
	return &TokenCodec{secret: key, allowLegacy: allowLegacy}
}

type tokenPayload struct {
	Version  int    `json:"v"`
	ClinicID string `json:"clinic_id"`
	Phone    string `json:"phone"`
	IssuedAt int64  `json:"iat"`
	Extra    string `json:"extra,omitempty"`
}

// Issue produces a token binding (clinicID, phone) to a form session.
func (c *TokenCodec) Issue(clinicID, phone, extra string) (string, error) {
	if clinicID == "" || phone == "" {
		return "", fmt.Errorf("%w: clinic id and phone required", ErrInvalidToken)
	}
	now := time.Now().UTC()

	if len(c.secret) == 0 {
		if !c.allowLegacy {
			return "", ErrSecretRequired
		}
		token := fmt.Sprintf("%s:%s:%d", clinicID, phone, now.Unix())
		if extra != "" {
			token += ":" + extra
		}
		return token, nil
	}

	payload := tokenPayload{
		Version:  1,
		ClinicID: clinicID,
		Phone:    phone,
		IssuedAt: now.Unix(),
		Extra:    extra,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("flows: encode token payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(data)
	return tokenPrefix + encoded + "." + c.sign(encoded), nil
}

// Verify validates a token and returns its claims. It never substitutes a
// default identity: anything malformed, unsigned when a signature is
// required, or missing fields is rejected.
func (c *TokenCodec) Verify(token string) (TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenClaims{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	if strings.HasPrefix(token, tokenPrefix) {
		return c.verifySigned(token)
	}
	return c.verifyLegacy(token)
}

func (c *TokenCodec) verifySigned(token string) (TokenClaims, error) {
	if len(c.secret) == 0 {
		return TokenClaims{}, ErrSecretRequired
	}
	parts := strings.Split(strings.TrimPrefix(token, tokenPrefix), ".")
	if len(parts) != 2 {
		return TokenClaims{}, fmt.Errorf("%w: malformed signed token", ErrInvalidToken)
	}
	encoded, sig := parts[0], parts[1]
	if !hmac.Equal([]byte(c.sign(encoded)), []byte(sig)) {
		return TokenClaims{}, fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: payload encoding", ErrInvalidToken)
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: payload decode", ErrInvalidToken)
	}
	if payload.ClinicID == "" || payload.Phone == "" {
		return TokenClaims{}, fmt.Errorf("%w: missing identity fields", ErrInvalidToken)
	}
	return TokenClaims{
		ClinicID: payload.ClinicID,
		Phone:    payload.Phone,
		Extra:    payload.Extra,
		IssuedAt: time.Unix(payload.IssuedAt, 0).UTC(),
	}, nil
}

func (c *TokenCodec) verifyLegacy(token string) (TokenClaims, error) {
	if !c.allowLegacy {
		return TokenClaims{}, fmt.Errorf("%w: legacy tokens disabled", ErrInvalidToken)
	}
	parts := strings.SplitN(token, ":", 4)
	if len(parts) < 3 {
		return TokenClaims{}, fmt.Errorf("%w: malformed legacy token", ErrInvalidToken)
	}
	issued, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: legacy timestamp", ErrInvalidToken)
	}
	if parts[0] == "" || parts[1] == "" {
		return TokenClaims{}, fmt.Errorf("%w: missing identity fields", ErrInvalidToken)
	}
	claims := TokenClaims{
		ClinicID: parts[0],
		Phone:    parts[1],
		IssuedAt: time.Unix(issued, 0).UTC(),
		Legacy:   true,
	}
	if len(parts) == 4 {
		claims.Extra = parts[3]
	}
	return claims, nil
}

// sign computes the hex HMAC-SHA256 over the encoded payload segment.
func (c *TokenCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
