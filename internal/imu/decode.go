// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decode failure kinds.
var (
	ErrArityMismatch = errors.New("arity mismatch")
	ErrNumericParse  = errors.New("numeric parse error")
)

// DecodeError describes why a payload was rejected.
type DecodeError struct {
	Kind   error // ErrArityMismatch or ErrNumericParse
	Fields int   // number of fields found
	Want   int   // number of fields expected
	Index  int   // offending field position (parse errors only)
	Field  string
	Err    error // underlying strconv error, if any
}

func (e *DecodeError) Error() string {
	if e.Kind == ErrArityMismatch {
		return fmt.Sprintf("%v: got %d fields, want %d", e.Kind, e.Fields, e.Want)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: field %d %q: %v", e.Kind, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("%v: field %d %q", e.Kind, e.Index, e.Field)
}

// Is matches the decode failure kind so callers can use errors.Is.
func (e *DecodeError) Is(target error) bool { return target == e.Kind }

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder parses comma-separated text payloads into fixed-arity vectors.
type Decoder struct {
	Fields int
}

// NewDecoder returns a decoder expecting exactly fields values per payload.
func NewDecoder(fields int) Decoder {
	return Decoder{Fields: fields}
}

// Decode parses payload. Decoding is pure: the same payload always yields the
// same vector or the same error. Surrounding whitespace (including a trailing
// newline) around a field is tolerated; non-finite values are rejected.
func (d Decoder) Decode(payload []byte) (Vector, error) {
	fields := strings.Split(string(payload), ",")
	if len(fields) != d.Fields {
		return nil, &DecodeError{Kind: ErrArityMismatch, Fields: len(fields), Want: d.Fields}
	}

	vec := make(Vector, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &DecodeError{Kind: ErrNumericParse, Fields: len(fields), Want: d.Fields, Index: i, Field: f, Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &DecodeError{Kind: ErrNumericParse, Fields: len(fields), Want: d.Fields, Index: i, Field: f}
		}
		vec[i] = v
	}
	return vec, nil
}
