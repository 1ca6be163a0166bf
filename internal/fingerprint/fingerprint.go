// Package fingerprint computes stable content hashes for analytics records.
//
// A fingerprint is the dedup identity of a record: two records with the same
// logical content produce the same fingerprint regardless of key ordering.
// Two algorithms exist side by side during the warehouse migration:
//
//   - [Legacy]: MD5, 32 hex characters, kept for compatibility with the
//     legacy warehouse that has not been migrated yet
//   - [Current]: SHA-256, 64 hex characters, used for all new data
//
// Fingerprints computed under different algorithms are never comparable.
package fingerprint

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Algorithm selects the digest used for fingerprinting.
type Algorithm int

const (
	// Legacy is MD5. Only valid against data written by the legacy pipeline.
	Legacy Algorithm = iota
	// Current is SHA-256.
	Current
)

// String returns the algorithm name for logging.
func (a Algorithm) String() string {
	if a == Legacy {
		return "md5"
	}
	return "sha256"
}

// digest hashes data with the selected algorithm and returns the hex digest.
func (a Algorithm) digest(data []byte) string {
	if a == Legacy {
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WholeRecord fingerprints the full content of a record.
//
// The record is serialized canonically: keys sorted lexicographically, values
// JSON-encoded. Values that cannot be JSON-encoded are stringified via
// fmt.Sprint instead of failing, so a malformed record degrades to a stable
// fallback rather than aborting a batch.
func WholeRecord(record map[string]any, alg Algorithm) string {
	return alg.digest(canonical(record))
}

// Fields fingerprints a selected subset of record fields.
//
// Field names are sorted lexicographically, each value is looked up in the
// record (missing fields map to the empty string), stringified, and joined
// with "|" before digesting.
func Fields(record map[string]any, fields []string, alg Algorithm) string {
	names := make([]string, len(fields))
	copy(names, fields)
	sort.Strings(names)

	values := make([]string, len(names))
	for i, name := range names {
		if v, ok := record[name]; ok && v != nil {
			values[i] = stringify(v)
		}
	}

	return alg.digest([]byte(strings.Join(values, "|")))
}

// UserIdentity fingerprints a user's identity fields for cross-record
// deduplication. Email and name are lowercased and trimmed, phone is trimmed.
func UserIdentity(email, phone, name string, alg Algorithm) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(email)),
		strings.TrimSpace(phone),
		strings.ToLower(strings.TrimSpace(name)),
	}
	return alg.digest([]byte(strings.Join(parts, "|")))
}

// canonical serializes a record deterministically: an object literal with
// keys in lexicographic order. Nested maps are handled by encoding/json,
// which also sorts map keys.
func canonical(record map[string]any) []byte {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(k)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(marshalValue(record[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// marshalValue encodes a value as JSON, falling back to a quoted
// fmt.Sprint form for values json cannot handle (channels, funcs, NaN).
func marshalValue(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	return data
}

// stringify renders a field value for field-subset fingerprints.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}
