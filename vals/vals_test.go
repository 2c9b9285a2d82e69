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

import "testing"

func TestToText(t *testing.T) {
	st := NewStruct("Types.Location")
	st.Set("Latitude", Float64(48.1351))
	st.Set("Longitude", Float64(11.582))

	tests := []struct {
		description string
		v           Value
		want        string
	}{
		{"empty", Empty(), ""},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"int", Int64(42), "42"},
		{"negative int", Int32(-7), "-7"},
		{"uint", Uint64(18446744073709551615), "18446744073709551615"},
		{"string verbatim", String("hello world"), "hello world"},
		{"float near zero collapses", Float64(4.2e-7), "0"},
		{"float negative near zero", Float64(-9.9e-7), "0"},
		{"float trims trailing zeros", Float64(3.5), "3.5"},
		{"float trims trailing point", Float64(90), "90"},
		{"float keeps six digits", Float64(0.123456789), "0.123457"},
		{"struct renders as JSON", StructVal(st),
			`{"Latitude":48.1351,"Longitude":11.582}`},
		{"array renders as JSON",
			Array(TypeInt64Array, []Value{Int64(1), Int64(2), Int64(3)}),
			"[1,2,3]"},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			if got := ToText(tc.v); got != tc.want {
				t.Fatalf("got %q, wanted %q", got, tc.want)
			}
		})
	}
}

func TestToTextFixedPoint(t *testing.T) {
	// The canonical form is what change detection compares, so text of a
	// string value must be a fixed point.
	for _, s := range []string{"", "90", "3.5", "true", "weird text"} {
		if got := ToText(String(ToText(String(s)))); got != s {
			t.Fatalf("not a fixed point: %q -> %q", s, got)
		}
	}
}

func TestToJSON(t *testing.T) {
	tests := []struct {
		description string
		v           Value
		want        string
	}{
		{"empty is null", Empty(), "null"},
		{"string escaped", String("a\"b\\c\nd"), `"a\"b\\c\nd"`},
		{"control escaped", String("x\x01y"), `"x\u0001y"`},
		{"bool", Bool(true), "true"},
		{"int", Int64(-5), "-5"},
		{"float", Float64(2.25), "2.25"},
		{"float near zero", Float32(1e-7), "0"},
		{"empty array", Array(TypeDoubleArray, nil), "[]"},
		{"nested array",
			Array(TypeStringArray, []Value{String("a"), String("b")}),
			`["a","b"]`},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			if got := ToJSON(tc.v); got != tc.want {
				t.Fatalf("got %q, wanted %q", got, tc.want)
			}
		})
	}
}

func TestStructFieldOrder(t *testing.T) {
	st := NewStruct("Types.T")
	st.Set("z", Int64(1))
	st.Set("a", Int64(2))
	st.Set("m", Int64(3))
	st.Set("a", Int64(4)) // replace keeps position

	want := `{"z":1,"a":4,"m":3}`
	if got := ToJSON(StructVal(st)); got != want {
		t.Fatalf("got %q, wanted %q", got, want)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		description string
		v           Value
		target      ValueType
		want        string
	}{
		{"empty passes through", Empty(), TypeInt32, ""},
		{"int to float", Int64(42), TypeDouble, "42"},
		{"float truncates toward zero", Float64(-3.9), TypeInt64, "-3"},
		{"float truncates toward zero positive", Float64(3.9), TypeInt32, "3"},
		{"narrowing wraps", Int64(300), TypeUint8, "44"},
		{"string to number", String("12.5"), TypeDouble, "12.5"},
		{"number to string", Float64(12.5), TypeString, "12.5"},
		{"bool to int", Bool(true), TypeInt64, "1"},
		{"int to bool", Int64(0), TypeBool, "false"},
		{"string true to bool", String("true"), TypeBool, "true"},
		{"string 1 to bool", String("1"), TypeBool, "true"},
		{"unparsable string yields empty", String("nope"), TypeInt64, ""},
		{"unspecified target unchanged", Float64(1.5), TypeUnspecified, "1.5"},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			got := Coerce(tc.v, tc.target)
			if text := ToText(got); text != tc.want {
				t.Fatalf("got %q (%s), wanted %q", text, got.Type(), tc.want)
			}
			if tc.want != "" && got.Type() != tc.target && tc.target != TypeUnspecified {
				t.Fatalf("got type %s, wanted %s", got.Type(), tc.target)
			}
		})
	}
}

func TestCoerceRoundTrip(t *testing.T) {
	// A numeric value representable in both types survives the round trip.
	tests := []struct {
		description string
		v           Value
		via         ValueType
	}{
		{"int64 via double", Int64(1234), TypeDouble},
		{"uint8 via int64", Uint8(200), TypeInt64},
		{"int16 via int32", Int16(-999), TypeInt32},
		{"double via string", Float64(2.5), TypeString},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			back := Coerce(Coerce(tc.v, tc.via), tc.v.Type())
			if ToText(back) != ToText(tc.v) || back.Type() != tc.v.Type() {
				t.Fatalf("round trip %s -> %s -> %s gave %s %q",
					tc.v.Type(), tc.via, tc.v.Type(), back.Type(), ToText(back))
			}
		})
	}
}

func TestParseValueType(t *testing.T) {
	for name, want := range map[string]ValueType{
		"double":   TypeDouble,
		"boolean":  TypeBool,
		"bool":     TypeBool,
		"uint16":   TypeUint16,
		"struct":   TypeStruct,
		"double[]": TypeDoubleArray,
	} {
		got, err := ParseValueType(name)
		if err != nil {
			t.Fatalf("ParseValueType(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseValueType(%q) = %s, wanted %s", name, got, want)
		}
	}
	if _, err := ParseValueType("quux"); err == nil {
		t.Fatal("expected an error for an unknown datatype")
	}
}
