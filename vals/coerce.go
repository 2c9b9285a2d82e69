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

package vals

import (
	"math"
	"strconv"
)

// Coerce converts v to the target type.  It is total: the empty marker
// passes through unchanged, and a value with no conversion to the target (an
// unparsable string, a struct or array coerced to a number, a value coerced
// to a struct or array type it is not) yields the empty marker.  Narrowing
// integer conversions truncate toward zero (via the usual two's-complement wrap for ints).
func Coerce(v Value, target ValueType) Value {
	if v.IsEmpty() || target == TypeUnspecified || v.t == target {
		return v
	}

	switch {
	case target == TypeBool:
		return Bool(truthy(v))
	case target.IsSigned():
		n, ok := asInt(v)
		if !ok {
			return Empty()
		}
		return signedOf(target, n)
	case target.IsUnsigned():
		n, ok := asInt(v)
		if !ok {
			return Empty()
		}
		return unsignedOf(target, uint64(n))
	case target == TypeFloat:
		f, ok := asFloat(v)
		if !ok {
			return Empty()
		}
		return Float32(float32(f))
	case target == TypeDouble:
		f, ok := asFloat(v)
		if !ok {
			return Empty()
		}
		return Float64(f)
	case target == TypeString:
		return String(ToText(v))
	case target == TypeStruct:
		if v.t == TypeStruct {
			return v
		}
		return Empty()
	case target.IsArray():
		if !v.t.IsArray() {
			return Empty()
		}
		elems := make([]Value, 0, len(v.arr))
		for _, el := range v.arr {
			elems = append(elems, Coerce(el, target.Elem()))
		}
		return Array(target, elems)
	}
	return v
}

func truthy(v Value) bool {
	switch {
	case v.t == TypeBool:
		return v.b
	case v.t.IsSigned():
		return v.i != 0
	case v.t.IsUnsigned():
		return v.u != 0
	case v.t.IsFloat():
		return v.f != 0
	case v.t == TypeString:
		return v.s == "true" || v.s == "1"
	}
	return false
}

func asInt(v Value) (int64, bool) {
	switch {
	case v.t.IsSigned():
		return v.i, true
	case v.t.IsUnsigned():
		return int64(v.u), true
	case v.t.IsFloat():
		return int64(v.f), true
	case v.t == TypeBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case v.t == TypeString:
		if n, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	}
	return 0, false
}

func asFloat(v Value) (float64, bool) {
	switch {
	case v.t.IsFloat():
		return v.f, true
	case v.t.IsSigned():
		return float64(v.i), true
	case v.t.IsUnsigned():
		return float64(v.u), true
	case v.t == TypeBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case v.t == TypeString:
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return f, true
		}
		return 0, false
	}
	return 0, false
}

func signedOf(t ValueType, n int64) Value {
	switch t {
	case TypeInt8:
		return Int8(int8(n))
	case TypeInt16:
		return Int16(int16(n))
	case TypeInt32:
		return Int32(int32(n))
	}
	return Int64(n)
}

func unsignedOf(t ValueType, n uint64) Value {
	switch t {
	case TypeUint8:
		return Uint8(uint8(n))
	case TypeUint16:
		return Uint16(uint16(n))
	case TypeUint32:
		return Uint32(uint32(n))
	}
	return Uint64(n)
}

// FromFloat makes an Int64 when f is integral and representable, otherwise a
// Float64.  This is the decoder's value-typing rule for unscaled signals.
func FromFloat(f float64) Value {
	if math.Floor(f) == f && math.MinInt64 <= f && f < math.MaxInt64 {
		return Int64(int64(f))
	}
	return Float64(f)
}
