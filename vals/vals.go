/* Copyright 2021 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package vals provides the typed value model: a tagged union over the VSS
// primitive types, structs, and arrays, together with the signal-quality tag
// and the qualified-value bundle that flows through the evaluator.
package vals

import (
	"fmt"
	"time"
)

// ValueType names each concrete variant a Value can hold.
//
// The numeric codes are exposed to transform scripts as TYPE_* constants, so
// the order here is part of the script-visible surface.
type ValueType int

const (
	TypeUnspecified ValueType = iota
	TypeString
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat
	TypeDouble
	TypeStruct
	TypeStringArray
	TypeBoolArray
	TypeInt8Array
	TypeInt16Array
	TypeInt32Array
	TypeInt64Array
	TypeUint8Array
	TypeUint16Array
	TypeUint32Array
	TypeUint64Array
	TypeFloatArray
	TypeDoubleArray
	TypeStructArray
)

var typeNames = map[ValueType]string{
	TypeUnspecified: "unspecified",
	TypeString:      "string",
	TypeBool:        "boolean",
	TypeInt8:        "int8",
	TypeInt16:       "int16",
	TypeInt32:       "int32",
	TypeInt64:       "int64",
	TypeUint8:       "uint8",
	TypeUint16:      "uint16",
	TypeUint32:      "uint32",
	TypeUint64:      "uint64",
	TypeFloat:       "float",
	TypeDouble:      "double",
	TypeStruct:      "struct",
	TypeStringArray: "string[]",
	TypeBoolArray:   "boolean[]",
	TypeInt8Array:   "int8[]",
	TypeInt16Array:  "int16[]",
	TypeInt32Array:  "int32[]",
	TypeInt64Array:  "int64[]",
	TypeUint8Array:  "uint8[]",
	TypeUint16Array: "uint16[]",
	TypeUint32Array: "uint32[]",
	TypeUint64Array: "uint64[]",
	TypeFloatArray:  "float[]",
	TypeDoubleArray: "double[]",
	TypeStructArray: "struct[]",
}

func (t ValueType) String() string {
	if s, have := typeNames[t]; have {
		return s
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// ParseValueType maps a mapping-document datatype name to a ValueType.
// "bool" is accepted as an alias for "boolean".
func ParseValueType(name string) (ValueType, error) {
	if name == "bool" {
		return TypeBool, nil
	}
	if name == "bool[]" {
		return TypeBoolArray, nil
	}
	for t, s := range typeNames {
		if s == name {
			return t, nil
		}
	}
	return TypeUnspecified, fmt.Errorf("unknown datatype %q", name)
}

// IsSigned reports whether t is a signed integer type.
func (t ValueType) IsSigned() bool {
	return TypeInt8 <= t && t <= TypeInt64
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t ValueType) IsUnsigned() bool {
	return TypeUint8 <= t && t <= TypeUint64
}

// IsFloat reports whether t is a floating-point type.
func (t ValueType) IsFloat() bool {
	return t == TypeFloat || t == TypeDouble
}

// IsNumeric reports whether t is an integer or floating-point type.
func (t ValueType) IsNumeric() bool {
	return t.IsSigned() || t.IsUnsigned() || t.IsFloat()
}

// IsArray reports whether t is one of the array types.
func (t ValueType) IsArray() bool {
	return TypeStringArray <= t && t <= TypeStructArray
}

// Elem returns the element type of an array type (TypeUnspecified
// otherwise).
func (t ValueType) Elem() ValueType {
	switch t {
	case TypeStringArray:
		return TypeString
	case TypeBoolArray:
		return TypeBool
	case TypeInt8Array:
		return TypeInt8
	case TypeInt16Array:
		return TypeInt16
	case TypeInt32Array:
		return TypeInt32
	case TypeInt64Array:
		return TypeInt64
	case TypeUint8Array:
		return TypeUint8
	case TypeUint16Array:
		return TypeUint16
	case TypeUint32Array:
		return TypeUint32
	case TypeUint64Array:
		return TypeUint64
	case TypeFloatArray:
		return TypeFloat
	case TypeDoubleArray:
		return TypeDouble
	case TypeStructArray:
		return TypeStruct
	}
	return TypeUnspecified
}

// Quality tags how usable a signal value is.
//
// The numeric codes are an external contract: transform scripts observe them
// as the STATUS_* integers, and downstream consumers see them on the wire.
type Quality int

const (
	QualityUnknown      Quality = 0
	QualityValid        Quality = 1
	QualityInvalid      Quality = 2
	QualityNotAvailable Quality = 3
	QualityStale        Quality = 4
	QualityOutOfRange   Quality = 5
)

func (q Quality) String() string {
	switch q {
	case QualityValid:
		return "valid"
	case QualityInvalid:
		return "invalid"
	case QualityNotAvailable:
		return "not_available"
	case QualityStale:
		return "stale"
	case QualityOutOfRange:
		return "out_of_range"
	}
	return "unknown"
}

// Struct is a named tuple with insertion-ordered fields.  Structs are shared
// by reference; once a Struct has been placed in the store its contents are
// treated as immutable by readers.
type Struct struct {
	TypeName string

	names  []string
	fields map[string]Value
}

// NewStruct makes an empty Struct of the given type name.
func NewStruct(typeName string) *Struct {
	return &Struct{
		TypeName: typeName,
		fields:   make(map[string]Value),
	}
}

// Set adds or replaces a field.  A replaced field keeps its original
// position.
func (s *Struct) Set(name string, v Value) {
	if _, have := s.fields[name]; !have {
		s.names = append(s.names, name)
	}
	s.fields[name] = v
}

// Get returns the named field.
func (s *Struct) Get(name string) (Value, bool) {
	v, have := s.fields[name]
	return v, have
}

// Fields returns the field names in insertion order.
func (s *Struct) Fields() []string {
	return s.names
}

// Len returns the number of fields.
func (s *Struct) Len() int {
	return len(s.names)
}

// Value is the tagged union.  The zero Value is the empty marker.
type Value struct {
	t   ValueType
	b   bool
	i   int64
	u   uint64
	f   float64
	s   string
	st  *Struct
	arr []Value
}

// Empty returns the empty marker.
func Empty() Value { return Value{} }

func Bool(v bool) Value       { return Value{t: TypeBool, b: v} }
func Int8(v int8) Value       { return Value{t: TypeInt8, i: int64(v)} }
func Int16(v int16) Value     { return Value{t: TypeInt16, i: int64(v)} }
func Int32(v int32) Value     { return Value{t: TypeInt32, i: int64(v)} }
func Int64(v int64) Value     { return Value{t: TypeInt64, i: v} }
func Uint8(v uint8) Value     { return Value{t: TypeUint8, u: uint64(v)} }
func Uint16(v uint16) Value   { return Value{t: TypeUint16, u: uint64(v)} }
func Uint32(v uint32) Value   { return Value{t: TypeUint32, u: uint64(v)} }
func Uint64(v uint64) Value   { return Value{t: TypeUint64, u: v} }
func Float32(v float32) Value { return Value{t: TypeFloat, f: float64(v)} }
func Float64(v float64) Value { return Value{t: TypeDouble, f: v} }
func String(v string) Value   { return Value{t: TypeString, s: v} }

// StructVal wraps a shared Struct reference.
func StructVal(st *Struct) Value {
	if st == nil {
		return Empty()
	}
	return Value{t: TypeStruct, st: st}
}

// Array makes a homogeneous array value.  t is the array type (for example
// TypeDoubleArray), not the element type.
func Array(t ValueType, items []Value) Value {
	if !t.IsArray() {
		return Empty()
	}
	return Value{t: t, arr: items}
}

// Type returns the variant tag.  The empty marker reports TypeUnspecified.
func (v Value) Type() ValueType { return v.t }

// IsEmpty reports whether v is the empty marker.
func (v Value) IsEmpty() bool { return v.t == TypeUnspecified }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.b }

// Int returns the value widened to int64.  Unsigned and float payloads are
// converted (floats truncate toward zero).
func (v Value) Int() int64 {
	switch {
	case v.t.IsSigned():
		return v.i
	case v.t.IsUnsigned():
		return int64(v.u)
	case v.t.IsFloat():
		return int64(v.f)
	case v.t == TypeBool:
		if v.b {
			return 1
		}
		return 0
	}
	return 0
}

// Uint returns the value widened to uint64.
func (v Value) Uint() uint64 {
	switch {
	case v.t.IsUnsigned():
		return v.u
	case v.t.IsSigned():
		return uint64(v.i)
	case v.t.IsFloat():
		return uint64(v.f)
	case v.t == TypeBool:
		if v.b {
			return 1
		}
		return 0
	}
	return 0
}

// Float returns the value widened to float64.
func (v Value) Float() float64 {
	switch {
	case v.t.IsFloat():
		return v.f
	case v.t.IsSigned():
		return float64(v.i)
	case v.t.IsUnsigned():
		return float64(v.u)
	case v.t == TypeBool:
		if v.b {
			return 1
		}
		return 0
	}
	return 0
}

// Str returns the string payload (not a rendering; see ToText).
func (v Value) Str() string { return v.s }

// Struct returns the shared Struct reference (nil unless TypeStruct).
func (v Value) Struct() *Struct { return v.st }

// Items returns the array elements (nil unless an array type).
func (v Value) Items() []Value { return v.arr }

// QualifiedValue bundles a Value with its quality and timestamp.  The
// timestamp is wall-clock; emissions carry their own stamp, and operator
// arithmetic uses the evaluator's script time instead.
type QualifiedValue struct {
	Value     Value
	Quality   Quality
	Timestamp time.Time
}

// IsValid reports whether the quality tag is QualityValid.
func (qv QualifiedValue) IsValid() bool { return qv.Quality == QualityValid }
