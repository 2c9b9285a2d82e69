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

package mapping

import (
	"strings"
	"testing"

	"github.com/Comcast/vssdag/dbc"
	"github.com/Comcast/vssdag/vals"

	"go.einride.tech/can/pkg/descriptor"
)

func testDecoder() *dbc.Decoder {
	return dbc.New(&descriptor.Database{
		Messages: []*descriptor.Message{
			{
				ID:     0x100,
				Name:   "Gear",
				Length: 8,
				Signals: []*descriptor.Signal{
					{
						Name:   "GearPos",
						Start:  0,
						Length: 4,
						Scale:  1,
						Min:    0,
						Max:    13,
						ValueDescriptions: []*descriptor.ValueDescription{
							{Value: 0, Description: "PARK"},
							{Value: 1, Description: "REVERSE"},
							{Value: 2, Description: "NEUTRAL"},
							{Value: 3, Description: "DRIVE"},
						},
					},
				},
			},
		},
	})
}

const goodDoc = `
mappings:
  - signal: Vehicle.Speed
    source: {type: dbc, name: VehSpd}
    datatype: double
    interval_ms: 100
    transform:
      code: "x * 3.6"
  - signal: Vehicle.IsMoving
    datatype: boolean
    depends_on: [Vehicle.Speed]
    update_trigger: both
    transform:
      code: "deps['Vehicle.Speed'] > 0.5"
  - signal: Vehicle.LegacyAccel
    depends_on: [Vehicle.Speed]
    transform:
      math: "derivative(deps['Vehicle.Speed'])"
  - signal: Vehicle.Gear
    source: {type: dbc, name: GearPos}
    datatype: string
    transform:
      mapping:
        - {from: PARK, to: P}
        - {from: DRIVE, to: D}
        - {from: 9, to: manual}
`

func TestLoad(t *testing.T) {
	ms, err := Load([]byte(goodDoc), testDecoder())
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 4 {
		t.Fatalf("loaded %d mappings, wanted 4", len(ms))
	}

	speed := ms[0]
	if !speed.IsInput() || speed.Source.Name != "VehSpd" {
		t.Fatalf("Vehicle.Speed should be an input from VehSpd: %+v", speed)
	}
	if speed.Datatype != vals.TypeDouble || speed.IntervalMS != 100 {
		t.Fatalf("Vehicle.Speed datatype/interval wrong: %+v", speed)
	}
	if code, is := speed.Transform.(CodeTransform); !is || code.Source != "x * 3.6" {
		t.Fatalf("Vehicle.Speed transform wrong: %#v", speed.Transform)
	}

	moving := ms[1]
	if moving.IsInput() || moving.Trigger != Both {
		t.Fatalf("Vehicle.IsMoving should be derived with trigger both: %+v", moving)
	}

	// The legacy schema: math is an alias of code, datatype defaults to
	// double.
	legacy := ms[2]
	if legacy.Datatype != vals.TypeDouble {
		t.Fatalf("legacy datatype should default to double, got %s", legacy.Datatype)
	}
	if code, is := legacy.Transform.(CodeTransform); !is ||
		!strings.Contains(code.Source, "derivative") {
		t.Fatalf("legacy math transform wrong: %#v", legacy.Transform)
	}

	// Enum labels resolve to raw codes; numbers pass through.
	gear := ms[3]
	vm, is := gear.Transform.(ValueMapTransform)
	if !is || len(vm.Entries) != 3 {
		t.Fatalf("Vehicle.Gear transform wrong: %#v", gear.Transform)
	}
	want := []ValueMapEntry{
		{From: "0", To: "P"},
		{From: "3", To: "D"},
		{From: "9", To: "manual"},
	}
	for i, e := range vm.Entries {
		if e != want[i] {
			t.Fatalf("entry %d = %+v, wanted %+v", i, e, want[i])
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		description string
		doc         string
		wantErr     string
	}{
		{
			"no mappings section",
			"something: else\n",
			"no 'mappings'",
		},
		{
			"duplicate signal",
			`
mappings:
  - signal: A
    source: {type: dbc, name: X}
  - signal: A
    source: {type: dbc, name: Y}
`,
			"duplicate mapping",
		},
		{
			"source and depends_on",
			`
mappings:
  - signal: A
    source: {type: dbc, name: X}
    depends_on: [B]
  - signal: B
    source: {type: dbc, name: Y}
`,
			"both a source and depends_on",
		},
		{
			"neither source nor depends_on",
			`
mappings:
  - signal: A
    datatype: double
`,
			"neither a source nor depends_on",
		},
		{
			"unknown datatype",
			`
mappings:
  - signal: A
    source: {type: dbc, name: X}
    datatype: quux
`,
			"unknown datatype",
		},
		{
			"unknown trigger",
			`
mappings:
  - signal: A
    source: {type: dbc, name: X}
    update_trigger: sometimes
`,
			"unknown update_trigger",
		},
		{
			"negative interval",
			`
mappings:
  - signal: A
    source: {type: dbc, name: X}
    interval_ms: -5
`,
			"negative interval_ms",
		},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			_, err := Load([]byte(tc.doc), testDecoder())
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got %v, wanted an error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadUnknownEnumLabel(t *testing.T) {
	doc := `
mappings:
  - signal: Vehicle.Gear
    source: {type: dbc, name: GearPos}
    datatype: string
    transform:
      mapping:
        - {from: WARP, to: W}
`
	_, err := Load([]byte(doc), testDecoder())
	if err == nil {
		t.Fatal("expected an error for an unknown enum label")
	}
	msg := err.Error()
	if !strings.Contains(msg, "WARP") {
		t.Fatalf("error should name the bad label: %v", err)
	}
	// The error must list the valid labels.
	for _, label := range []string{"PARK", "REVERSE", "NEUTRAL", "DRIVE"} {
		if !strings.Contains(msg, label) {
			t.Fatalf("error should list label %s: %v", label, err)
		}
	}
}

func TestLoadBooleanMappingTargets(t *testing.T) {
	doc := `
mappings:
  - signal: Door.Open
    source: {type: dbc, name: GearPos}
    datatype: boolean
    transform:
      mapping:
        - {from: 0, to: false}
        - {from: 1, to: true}
`
	ms, err := Load([]byte(doc), testDecoder())
	if err != nil {
		t.Fatal(err)
	}
	vm := ms[0].Transform.(ValueMapTransform)
	if vm.Entries[0].To != "false" || vm.Entries[1].To != "true" {
		t.Fatalf("boolean targets mangled: %+v", vm.Entries)
	}
}
