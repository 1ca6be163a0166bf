package etl

import (
	"time"
)

// Record is a schema-less row produced by the extraction layer. Domains do
// not share a fixed shape; transformers read the fields they know about and
// tolerate everything else.
type Record map[string]any

// Clone returns a shallow copy. Transformers operate on copies so the
// "a field was deleted vs. renamed" contract stays auditable.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// GetString returns the field as a string, or "" when absent or not a string.
func (r Record) GetString(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// GetInt returns the field coerced to int64. Extraction layers differ on
// integer width, so all the common numeric types are accepted.
func (r Record) GetInt(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetFloat returns the field coerced to float64.
func (r Record) GetFloat(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// GetTime returns the field as a time.Time when present.
func (r Record) GetTime(key string) (time.Time, bool) {
	t, ok := r[key].(time.Time)
	return t, ok
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Validate reports whether every required field is present and non-nil.
func Validate(r Record, required []string) bool {
	for _, f := range required {
		if !r.Has(f) {
			return false
		}
	}
	return true
}
