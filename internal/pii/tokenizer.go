// Package pii converts sensitive fields into opaque tokens before they reach
// the analytics store.
//
// Tokenization is a one-way, keyed transform: HMAC-SHA256 under a secret
// salt, truncated to 16 hex characters and prefixed with the field kind. The
// same normalized input always yields the same token, different inputs yield
// different tokens with overwhelming probability, and the token is not
// reversible without the salt.
//
// A legacy masking path (legacy.go) survives only to reproduce outputs of
// the old pipeline; it retains partial cleartext and must never protect new
// data.
package pii

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
)

// Token prefixes by field kind.
const (
	PrefixEmail   = "eml"
	PrefixPhone   = "phn"
	PrefixName    = "nam"
	PrefixCard    = "crd"
	PrefixAddress = "adr"
	PrefixUser    = "usr"
)

// Replacement string used by Redact by default.
const DefaultRedaction = "[REDACTED]"

// ErrMissingSalt is returned when no tokenization salt is configured.
// A silently-varying random default would break token comparability across
// process restarts, so the absence of a salt is a hard configuration error.
var ErrMissingSalt = errors.New("pii: tokenization salt is not configured")

// Tokenizer converts PII values into deterministic opaque tokens. The salt
// is process-wide configuration, read-only after construction, shared by all
// job invocations within the process.
type Tokenizer struct {
	salt []byte
}

// NewTokenizer creates a Tokenizer with the configured salt. Returns
// ErrMissingSalt when the salt is empty.
func NewTokenizer(salt string) (*Tokenizer, error) {
	if salt == "" {
		return nil, ErrMissingSalt
	}
	return &Tokenizer{salt: []byte(salt)}, nil
}

// Tokenize produces a token of the form "{prefix}_{16 hex chars}" for a PII
// value. Empty input maps to the empty string, not a token, so absence of
// PII is never confused with a real token.
func (t *Tokenizer) Tokenize(value, prefix string) string {
	if value == "" {
		return ""
	}

	mac := hmac.New(sha256.New, t.salt)
	mac.Write([]byte(value))
	digest := hex.EncodeToString(mac.Sum(nil))

	return prefix + "_" + digest[:16]
}

// TokenizeEmail normalizes an email (lowercase, trimmed) and tokenizes it.
func (t *Tokenizer) TokenizeEmail(email string) string {
	return t.Tokenize(strings.ToLower(strings.TrimSpace(email)), PrefixEmail)
}

// TokenizePhone normalizes a phone number to digits only and tokenizes it.
func (t *Tokenizer) TokenizePhone(phone string) string {
	return t.Tokenize(digitsOnly(phone), PrefixPhone)
}

// TokenizeName normalizes a person's name (lowercase, trimmed) and
// tokenizes it.
func (t *Tokenizer) TokenizeName(name string) string {
	return t.Tokenize(strings.ToLower(strings.TrimSpace(name)), PrefixName)
}

// UserToken produces a stable token referencing a user without exposing the
// internal ID.
func (t *Tokenizer) UserToken(userID int64) string {
	return t.Tokenize(strconv.FormatInt(userID, 10), PrefixUser)
}

// TokenizePaymentInfo replaces the sensitive payment fields of a record with
// tokens and returns the result as a new record; the input is not mutated.
//
//   - card_number becomes card_token plus card_last_four (the last 4 digits,
//     or "****" when fewer than 4 digits are present)
//   - billing_address becomes billing_token
//   - cardholder_name becomes cardholder_token
//
// Each replaced source field is deleted. Fields absent from the input are
// left untouched; no key is invented.
func (t *Tokenizer) TokenizePaymentInfo(record etl.Record) etl.Record {
	result := record.Clone()

	if card := result.GetString("card_number"); card != "" {
		result["card_token"] = t.Tokenize(card, PrefixCard)
		digits := digitsOnly(card)
		if len(digits) >= 4 {
			result["card_last_four"] = digits[len(digits)-4:]
		} else {
			result["card_last_four"] = "****"
		}
		delete(result, "card_number")
	}

	if addr := result.GetString("billing_address"); addr != "" {
		result["billing_token"] = t.Tokenize(addr, PrefixAddress)
		delete(result, "billing_address")
	}

	if name := result.GetString("cardholder_name"); name != "" {
		result["cardholder_token"] = t.Tokenize(name, PrefixName)
		delete(result, "cardholder_name")
	}

	return result
}

// DefaultPIIFields is the blacklist Redact falls back to. Blacklists
// under-specify and miss PII fields added later; prefer
// SafeAnalyticsFields where possible.
var DefaultPIIFields = []string{
	"email", "phone", "ssn", "social_security_number",
	"credit_card", "card_number", "cvv", "cvc",
	"address", "street_address", "billing_address",
	"date_of_birth", "dob", "birth_date",
	"name", "first_name", "last_name", "full_name",
	"ip_address", "ip",
	"password", "password_hash",
}

// Redact replaces the named fields (DefaultPIIFields when fields is nil)
// with the replacement string and returns a copy, leaving the original
// untouched. Replacement, not removal: the key survives so downstream
// consumers can tell "was present, redacted" from "was never set".
func Redact(record etl.Record, fields []string, replacement string) etl.Record {
	if fields == nil {
		fields = DefaultPIIFields
	}
	if replacement == "" {
		replacement = DefaultRedaction
	}

	result := record.Clone()
	for _, f := range fields {
		if v, ok := result[f]; ok && v != nil && v != "" {
			result[f] = replacement
		}
	}
	return result
}

// DefaultSafeFields is the whitelist SafeAnalyticsFields falls back to.
var DefaultSafeFields = []string{
	"id", "user_token", "created_at", "updated_at",
	"status", "type", "category", "amount", "currency",
	"count", "total", "average", "percentage",
	"country_code", "region", "timezone",
}

// SafeAnalyticsFields projects a record onto an explicitly allowed set of
// keys (DefaultSafeFields when allowed is nil). The whitelist direction is
// preferred over Redact's blacklist: new PII fields added later simply do
// not survive.
func SafeAnalyticsFields(record etl.Record, allowed []string) etl.Record {
	if allowed == nil {
		allowed = DefaultSafeFields
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		allowedSet[f] = struct{}{}
	}

	result := make(etl.Record)
	for k, v := range record {
		if _, ok := allowedSet[k]; ok {
			result[k] = v
		}
	}
	return result
}

// digitsOnly strips everything but ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
