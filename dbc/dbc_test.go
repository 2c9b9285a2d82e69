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

package dbc

import (
	"testing"

	"github.com/Comcast/vssdag/vals"

	"go.einride.tech/can/pkg/descriptor"
)

func testDB() *descriptor.Database {
	return &descriptor.Database{
		Messages: []*descriptor.Message{
			{
				ID:     0x100,
				Name:   "Status",
				Length: 8,
				Signals: []*descriptor.Signal{
					{
						Name:   "ErrorCode",
						Start:  0,
						Length: 8,
						Scale:  1,
						Offset: 0,
						Min:    0,
						Max:    253,
						ValueDescriptions: []*descriptor.ValueDescription{
							{Value: 0, Description: "OK"},
							{Value: 1, Description: "DEGRADED"},
							{Value: 2, Description: "FAULT"},
						},
					},
					{
						Name:   "FullRange",
						Start:  8,
						Length: 8,
						Scale:  1,
						Offset: 0,
						Min:    0,
						Max:    255,
					},
				},
			},
			{
				ID:     0x200,
				Name:   "Motion",
				Length: 8,
				Signals: []*descriptor.Signal{
					{
						Name:   "Speed",
						Start:  0,
						Length: 16,
						Scale:  0.01,
						Offset: 0,
						Min:    0,
						Max:    600,
					},
				},
			},
		},
	}
}

func TestDecodeSentinels(t *testing.T) {
	d := New(testDB())

	tests := []struct {
		description string
		data        []byte
		wantText    string
		wantQuality vals.Quality
	}{
		{"invalid sentinel", []byte{0xFF, 0x00}, "255", vals.QualityInvalid},
		{"unavailable sentinel", []byte{0xFE, 0x00}, "254", vals.QualityNotAvailable},
		{"plain value", []byte{0x64, 0x00}, "100", vals.QualityValid},
		{"zero", []byte{0x00, 0x00}, "0", vals.QualityValid},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			got := d.Decode(0x100, tc.data)
			if len(got) != 2 {
				t.Fatalf("decoded %d signals, wanted 2", len(got))
			}
			ec := got[0]
			if ec.Signal != "ErrorCode" {
				t.Fatalf("first signal is %s, wanted ErrorCode", ec.Signal)
			}
			if text := vals.ToText(ec.Value); text != tc.wantText {
				t.Fatalf("value %q, wanted %q", text, tc.wantText)
			}
			if ec.Quality != tc.wantQuality {
				t.Fatalf("quality %s, wanted %s", ec.Quality, tc.wantQuality)
			}
			if !ec.HasEnums {
				t.Fatal("ErrorCode should report enums")
			}
		})
	}
}

func TestDecodeFullRangeHasNoSentinels(t *testing.T) {
	d := New(testDB())

	got := d.Decode(0x100, []byte{0x00, 0xFF})
	if len(got) != 2 {
		t.Fatalf("decoded %d signals, wanted 2", len(got))
	}
	fr := got[1]
	if fr.Signal != "FullRange" {
		t.Fatalf("second signal is %s, wanted FullRange", fr.Signal)
	}
	if text := vals.ToText(fr.Value); text != "255" {
		t.Fatalf("value %q, wanted 255", text)
	}
	if fr.Quality != vals.QualityValid {
		t.Fatalf("quality %s, wanted valid (sentinels unusable on a full-range signal)", fr.Quality)
	}
}

func TestDecodeValueTyping(t *testing.T) {
	d := New(testDB())

	// Unscaled integral values come out as int64.
	got := d.Decode(0x100, []byte{0x64, 0x00})
	if typ := got[0].Value.Type(); typ != vals.TypeInt64 {
		t.Fatalf("unscaled signal decoded as %s, wanted int64", typ)
	}

	// A scaled signal comes out as double.
	got = d.Decode(0x200, []byte{0x10, 0x27}) // raw 10000 * 0.01 = 100
	if len(got) != 1 {
		t.Fatalf("decoded %d signals, wanted 1", len(got))
	}
	if typ := got[0].Value.Type(); typ != vals.TypeDouble {
		t.Fatalf("scaled signal decoded as %s, wanted double", typ)
	}
	if text := vals.ToText(got[0].Value); text != "100" {
		t.Fatalf("value %q, wanted 100", text)
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	d := New(testDB())

	// raw 61000 * 0.01 = 610, beyond Speed's max of 600 but not a
	// sentinel pattern.
	got := d.Decode(0x200, []byte{0x48, 0xEE})
	if len(got) != 1 {
		t.Fatalf("decoded %d signals, wanted 1", len(got))
	}
	if got[0].Quality != vals.QualityInvalid {
		t.Fatalf("quality %s, wanted invalid for an out-of-range value", got[0].Quality)
	}
}

func TestDecodeExtendedFlagStripped(t *testing.T) {
	d := New(testDB())

	if got := d.Decode(0x100|0x80000000, []byte{0x01, 0x00}); len(got) != 2 {
		t.Fatalf("masked id should decode; got %d signals", len(got))
	}
	if got := d.Decode(0x300, []byte{0x01}); got != nil {
		t.Fatalf("unknown id should yield nothing, got %v", got)
	}
}

func TestLookups(t *testing.T) {
	d := New(testDB())

	if !d.HasMessage(0x100) || d.HasMessage(0x999) {
		t.Fatal("HasMessage is wrong")
	}

	names := d.SignalsOf(0x100)
	if len(names) != 2 || names[0] != "ErrorCode" || names[1] != "FullRange" {
		t.Fatalf("SignalsOf(0x100) = %v", names)
	}

	id, have := d.MessageIDOf("Speed")
	if !have || id != 0x200 {
		t.Fatalf("MessageIDOf(Speed) = %v, %v", id, have)
	}
	if _, have := d.MessageIDOf("Nope"); have {
		t.Fatal("MessageIDOf should miss for unknown signals")
	}

	enums := d.EnumOf("ErrorCode")
	if enums == nil {
		t.Fatal("ErrorCode should have enums")
	}
	if code, have := enums.Code("FAULT"); !have || code != 2 {
		t.Fatalf("Code(FAULT) = %v, %v", code, have)
	}
	if label, have := enums.Label(1); !have || label != "DEGRADED" {
		t.Fatalf("Label(1) = %v, %v", label, have)
	}
	if d.EnumOf("FullRange") != nil {
		t.Fatal("FullRange should have no enums")
	}
}
