// Package actiontoken issues and verifies the signed single-purpose
// tokens embedded in chat-bot callback buttons. A token authorizes one
// action on one ingest job until it expires.
package actiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions a token can authorize.
const (
	ActionRetry     = "retry"
	ActionReprocess = "reprocess"
)

// Verification failures. All of them mean the token must be rejected;
// the distinctions matter only for logging.
var (
	ErrInvalidFormat    = errors.New("invalid token format")
	ErrInvalidEncoding  = errors.New("invalid token encoding")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidPayload   = errors.New("invalid token payload")
	ErrJobMismatch      = errors.New("token job mismatch")
	ErrActionMismatch   = errors.New("token action mismatch")
	ErrExpired          = errors.New("token expired")
)

// Issuer signs and verifies action tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an issuer. The secret must be non-empty; ttl is the
// default token lifetime.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("action token secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

type payload struct {
	Action string `json:"action"`
	Exp    int64  `json:"exp"`
	JobID  string `json:"job_id"`
	V      int    `json:"v"`
}

func b64urlEncode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func b64urlDecode(raw string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
}

func (i *Issuer) sign(payloadRaw []byte) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payloadRaw)
	return mac.Sum(nil)
}

// Issue creates a token for one action on one job, returning the token
// and its expiry.
func (i *Issuer) Issue(jobID uuid.UUID, action string, now time.Time) (string, time.Time, error) {
	if now.IsZero() {
		now = time.Now()
	}
	exp := now.Unix() + int64(i.ttl/time.Second)
	if exp <= now.Unix() {
		exp = now.Unix() + 1
	}

	// Field order in the struct keeps the serialized form stable:
	// encoding/json emits struct fields in declaration order, and the
	// declaration is alphabetical to match canonical sorted-key JSON.
	payloadRaw, err := json.Marshal(payload{
		Action: action,
		Exp:    exp,
		JobID:  jobID.String(),
		V:      1,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to encode token payload: %w", err)
	}

	signature := i.sign(payloadRaw)
	token := b64urlEncode(payloadRaw) + "." + b64urlEncode(signature)
	return token, time.Unix(exp, 0).UTC(), nil
}

// Verify checks a token against the expected job and action. The
// signature is compared in constant time before the payload is trusted.
func (i *Issuer) Verify(token string, jobID uuid.UUID, action string, now time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}

	payloadB64, signatureB64, found := strings.Cut(token, ".")
	if !found {
		return ErrInvalidFormat
	}

	payloadRaw, err := b64urlDecode(payloadB64)
	if err != nil {
		return ErrInvalidEncoding
	}
	signature, err := b64urlDecode(signatureB64)
	if err != nil {
		return ErrInvalidEncoding
	}

	expected := i.sign(payloadRaw)
	if !hmac.Equal(signature, expected) {
		return ErrInvalidSignature
	}

	var p payload
	if err := json.Unmarshal(payloadRaw, &p); err != nil {
		return ErrInvalidPayload
	}

	if p.JobID != jobID.String() {
		return ErrJobMismatch
	}
	if p.Action != action {
		return ErrActionMismatch
	}
	if now.Unix() > p.Exp {
		return ErrExpired
	}

	return nil
}
