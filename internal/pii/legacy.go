package pii

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
)

// Legacy masking path. Masking retains partial cleartext (last 4 digits,
// first character plus domain) for display purposes and is explicitly weaker
// than tokenization. It exists only to reproduce old pipeline outputs.

// MaskEmail masks an email address keeping the first character of the local
// part and the full domain, e.g. "j***@example.com". Inputs without an "@"
// are returned unchanged.
func MaskEmail(email string) string {
	if email == "" || !strings.Contains(email, "@") {
		return email
	}

	local, domain, _ := strings.Cut(email, "@")
	if len(local) > 1 {
		local = local[:1] + "***"
	}
	return local + "@" + domain
}

// MaskPhone masks a phone number showing only the last 4 digits, e.g.
// "***-***-1234". Fewer than 4 digits masks entirely.
func MaskPhone(phone string) string {
	digits := digitsOnly(phone)
	if len(digits) < 4 {
		return "****"
	}
	return "***-***-" + digits[len(digits)-4:]
}

// MaskCard masks a card number showing only the last 4 digits, e.g.
// "****-****-****-1234". Fewer than 4 digits masks entirely.
func MaskCard(cardNumber string) string {
	digits := digitsOnly(cardNumber)
	if len(digits) < 4 {
		return "****"
	}
	return "****-****-****-" + digits[len(digits)-4:]
}

// HashMD5 hashes a PII value with unsalted MD5. Legacy dedup identity only.
func HashMD5(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashSHA1 hashes a PII value with unsalted SHA-1. Legacy only.
func HashSHA1(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

// AnonymizeUserRecord applies the legacy masking treatment to a user
// record, adding masked and hashed variants alongside the raw fields.
// Returns a copy; the input is not mutated.
func AnonymizeUserRecord(record etl.Record) etl.Record {
	result := record.Clone()

	if email := result.GetString("email"); email != "" {
		result["email_masked"] = MaskEmail(email)
		result["email_hash"] = HashMD5(email)
	}
	if phone := result.GetString("phone"); phone != "" {
		result["phone_masked"] = MaskPhone(phone)
		result["phone_hash"] = HashMD5(phone)
	}
	if name := result.GetString("name"); name != "" {
		result["name_hash"] = HashMD5(name)
	}

	return result
}

// DerivedAnalyticsFields extracts the PII-derived features the legacy
// pipeline reported without storing raw PII: the email domain and the phone
// country code (for numbers in +NNN form).
func DerivedAnalyticsFields(record etl.Record) etl.Record {
	result := make(etl.Record)

	if email := record.GetString("email"); email != "" {
		if _, domain, ok := strings.Cut(email, "@"); ok {
			result["email_domain"] = domain
		}
	}

	if phone := record.GetString("phone"); strings.HasPrefix(phone, "+") {
		code := digitsOnly(phone)
		if len(code) > 3 {
			code = code[:3]
		}
		if code != "" {
			result["phone_country_code"] = code
		}
	}

	return result
}
