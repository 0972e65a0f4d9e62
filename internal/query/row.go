package query

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
)

// RawRow is one result row as the driver returned it, keyed by column label.
type RawRow map[string]any

// Row reads canonical values out of a RawRow.
//
// The accessors never panic and never return an error individually. The first
// failure is remembered and reported by Err, after which every accessor
// returns the zero value. A mapper therefore reads all the fields it needs and
// checks Err once at the end:
//
//	r := query.NewRow(raw, norm)
//	m := model.Message{ID: r.ID("id"), Body: r.String("body")}
//	return m, r.Err()
//
// A NULL read through a non-optional accessor is a malformed value; use the
// Opt variants for nullable columns.
type Row struct {
	raw  RawRow
	norm *Normalizer
	err  error
}

func NewRow(raw RawRow, norm *Normalizer) *Row {
	return &Row{raw: raw, norm: norm}
}

// Err returns the first conversion failure, or nil.
func (r *Row) Err() error { return r.err }

// Has reports whether the row has column name and it is not NULL.
func (r *Row) Has(name string) bool {
	v, ok := r.raw[name]
	return ok && v != nil
}

var errNull = errors.New("unexpected NULL")
var errMissing = errors.New("column not in result")

// value normalizes one column. ok is false when the column is NULL (and
// required is false) or when an error has been recorded.
func (r *Row) value(name string, kind Kind, required bool) (any, bool) {
	if r.err != nil {
		return nil, false
	}
	raw, present := r.raw[name]
	if !present {
		r.err = apperror.MalformedValue(name, kind.String(), errMissing)
		return nil, false
	}
	v, err := r.norm.Normalize(raw, kind)
	if err != nil {
		r.err = apperror.MalformedValue(name, kind.String(), err)
		return nil, false
	}
	if v == nil {
		if required {
			r.err = apperror.MalformedValue(name, kind.String(), errNull)
		}
		return nil, false
	}
	return v, true
}

func (r *Row) ID(name string) uuid.UUID {
	if v, ok := r.value(name, KindID, true); ok {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}

func (r *Row) OptID(name string) *uuid.UUID {
	if v, ok := r.value(name, KindID, false); ok {
		id := v.(uuid.UUID)
		return &id
	}
	return nil
}

func (r *Row) Bool(name string) bool {
	if v, ok := r.value(name, KindBool, true); ok {
		return v.(bool)
	}
	return false
}

func (r *Row) Int32(name string) int32 {
	if v, ok := r.value(name, KindInt32, true); ok {
		return v.(int32)
	}
	return 0
}

func (r *Row) Int64(name string) int64 {
	if v, ok := r.value(name, KindInt64, true); ok {
		return v.(int64)
	}
	return 0
}

// OptInt64 returns 0 for NULL; aggregates over empty sets come back NULL.
func (r *Row) OptInt64(name string) int64 {
	if v, ok := r.value(name, KindInt64, false); ok {
		return v.(int64)
	}
	return 0
}

func (r *Row) Float(name string) float64 {
	if v, ok := r.value(name, KindFloat, true); ok {
		return v.(float64)
	}
	return 0
}

// OptFloat returns 0 for NULL.
func (r *Row) OptFloat(name string) float64 {
	if v, ok := r.value(name, KindFloat, false); ok {
		return v.(float64)
	}
	return 0
}

func (r *Row) String(name string) string {
	if v, ok := r.value(name, KindString, true); ok {
		return v.(string)
	}
	return ""
}

func (r *Row) OptString(name string) *string {
	if v, ok := r.value(name, KindString, false); ok {
		s := v.(string)
		return &s
	}
	return nil
}

func (r *Row) Time(name string) time.Time {
	if v, ok := r.value(name, KindTime, true); ok {
		return v.(time.Time)
	}
	return time.Time{}
}

func (r *Row) OptTime(name string) *time.Time {
	if v, ok := r.value(name, KindTime, false); ok {
		t := v.(time.Time)
		return &t
	}
	return nil
}

func (r *Row) Duration(name string) time.Duration {
	if v, ok := r.value(name, KindDuration, true); ok {
		return v.(time.Duration)
	}
	return 0
}

func (r *Row) OptDuration(name string) *time.Duration {
	if v, ok := r.value(name, KindDuration, false); ok {
		d := v.(time.Duration)
		return &d
	}
	return nil
}
