package types

import (
	"time"

	"github.com/spf13/cast"
)

// Record is a schema-loose CRM record as returned by the data source.
// CRM objects carry org-specific custom fields, so records are maps rather
// than rigid structs; missing or malformed fields resolve to the caller's
// default instead of erroring.
type Record map[string]any

// Has reports whether the field is present and non-nil.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Str returns the field as a string, or def when absent or not coercible.
func (r Record) Str(field, def string) string {
	if !r.Has(field) {
		return def
	}
	s, err := cast.ToStringE(r[field])
	if err != nil {
		return def
	}
	return s
}

// Float returns the field as a float64, or def when absent or non-numeric.
func (r Record) Float(field string, def float64) float64 {
	if !r.Has(field) {
		return def
	}
	f, err := cast.ToFloat64E(r[field])
	if err != nil {
		return def
	}
	return f
}

// Int returns the field as an int, or def when absent or non-numeric.
func (r Record) Int(field string, def int) int {
	if !r.Has(field) {
		return def
	}
	i, err := cast.ToIntE(r[field])
	if err != nil {
		return def
	}
	return i
}

// Bool returns the field as a bool, or def when absent or not coercible.
func (r Record) Bool(field string, def bool) bool {
	if !r.Has(field) {
		return def
	}
	b, err := cast.ToBoolE(r[field])
	if err != nil {
		return def
	}
	return b
}

// Time returns the field as a time.Time, or the zero time when absent or
// unparsable. Callers check IsZero to apply their own fallback.
func (r Record) Time(field string) time.Time {
	if !r.Has(field) {
		return time.Time{}
	}
	t, err := cast.ToTimeE(r[field])
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a shallow copy of the record. Scoring augments copies so
// that input records are never mutated in place.
func (r Record) Clone() Record {
	cp := make(Record, len(r)+2)
	for k, v := range r {
		cp[k] = v
	}
	return cp
}
