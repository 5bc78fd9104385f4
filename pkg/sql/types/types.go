// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package types defines the primitive slot types a tuple can hold and their
// fixed in-tuple widths.
package types

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// T is the type of a tuple slot.
type T int

const (
	// Unknown is the zero value and is never a valid slot type.
	Unknown T = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Float
	Double
	// Timestamp is stored as nanoseconds since the Unix epoch.
	Timestamp
	// String is stored out of line: the slot holds a reference to the
	// payload in the tuple's arena.
	String
)

// StringSlotSize is the in-tuple width of a String slot: chunk index,
// offset and length, each a uint32.
const StringSlotSize = 12

var typeNames = [...]string{
	Unknown:   "unknown",
	Bool:      "bool",
	Int8:      "int8",
	Int16:     "int16",
	Int32:     "int32",
	Int64:     "int64",
	Float:     "float",
	Double:    "double",
	Timestamp: "timestamp",
	String:    "string",
}

var typeSizes = [...]int{
	Bool:      1,
	Int8:      1,
	Int16:     2,
	Int32:     4,
	Int64:     8,
	Float:     4,
	Double:    8,
	Timestamp: 8,
	String:    StringSlotSize,
}

// All lists every valid slot type.
var All = []T{Bool, Int8, Int16, Int32, Int64, Float, Double, Timestamp, String}

// Size returns the number of bytes a slot of this type occupies inside a
// tuple.
func (t T) Size() int {
	if !t.Valid() {
		return 0
	}
	return typeSizes[t]
}

// IsVarLen returns whether the slot's payload lives outside the tuple.
func (t T) IsVarLen() bool {
	return t == String
}

// Valid returns whether t is one of the defined slot types.
func (t T) Valid() bool {
	return t > Unknown && t <= String
}

func (t T) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// SafeValue implements the redact.SafeValue interface.
func (T) SafeValue() {}

var _ redact.SafeValue = T(0)

// Parse returns the type with the given name. Names are case-insensitive
// and accept the common SQL aliases.
func Parse(name string) (T, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool", "boolean":
		return Bool, nil
	case "int8", "tinyint":
		return Int8, nil
	case "int16", "smallint":
		return Int16, nil
	case "int32", "int":
		return Int32, nil
	case "int64", "bigint":
		return Int64, nil
	case "float", "float4", "real":
		return Float, nil
	case "double", "float8":
		return Double, nil
	case "timestamp":
		return Timestamp, nil
	case "string", "varchar", "text":
		return String, nil
	}
	return Unknown, errors.WithHint(
		errors.Newf("unknown slot type %q", name),
		"supported types: bool, int8, int16, int32, int64, float, double, timestamp, string")
}
