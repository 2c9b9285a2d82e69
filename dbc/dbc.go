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

// Package dbc decodes raw CAN frames into typed, quality-tagged signal
// values using a DBC database.
//
// The database file is parsed by go.einride.tech/can; this package owns the
// decode semantics on top of it: value typing, and the pre-computed
// invalid/unavailable sentinel patterns and physical-range checks that
// determine each signal's quality.
package dbc

import (
	"fmt"
	"log"
	"os"

	"github.com/Comcast/vssdag/util"
	"github.com/Comcast/vssdag/vals"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/compile"
	"go.einride.tech/can/pkg/descriptor"
)

// idMask strips the extended-frame flag so 11-bit and 29-bit ids compare
// uniformly.
const idMask = 0x1FFFFFFF

// Decoded is one signal's result from decoding a frame.
type Decoded struct {
	Signal   string
	Value    vals.Value
	Quality  vals.Quality
	HasEnums bool
}

// EnumMap is a bidirectional map between a signal's value-description
// labels and raw codes.
type EnumMap struct {
	byLabel map[string]int64
	byCode  map[int64]string
	labels  []string
}

// Code resolves a label to its raw code.
func (m *EnumMap) Code(label string) (int64, bool) {
	c, have := m.byLabel[label]
	return c, have
}

// Label resolves a raw code to its label.
func (m *EnumMap) Label(code int64) (string, bool) {
	l, have := m.byCode[code]
	return l, have
}

// Labels returns the known labels in database order.
func (m *EnumMap) Labels() []string { return m.labels }

type signalInfo struct {
	sig   *descriptor.Signal
	msgID uint32

	// Pre-computed at parse time, reused on every decode.
	scaled     bool
	invalidRaw uint64
	naRaw      uint64
	useInvalid bool
	useNA      bool
	rangeMin   float64
	rangeMax   float64
	hasRange   bool

	enums *EnumMap
}

// status classifies one decoded sample.  rawBits is the unsigned bit
// pattern; phys is the scaled physical value.
func (si *signalInfo) status(rawBits uint64, phys float64) vals.Quality {
	if si.useInvalid && rawBits == si.invalidRaw {
		return vals.QualityInvalid
	}
	if si.useNA && rawBits == si.naRaw {
		return vals.QualityNotAvailable
	}
	if si.hasRange && (phys < si.rangeMin || si.rangeMax < phys) {
		return vals.QualityInvalid
	}
	return vals.QualityValid
}

type messageInfo struct {
	msg     *descriptor.Message
	signals []*signalInfo
}

// Decoder wraps a parsed DBC database.
type Decoder struct {
	byID   map[uint32]*messageInfo
	byName map[string]*signalInfo
}

// ParseFile reads and compiles a DBC file.
func ParseFile(path string) (*Decoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open DBC file %s: %w", path, err)
	}
	result, err := compile.Compile(path, data)
	if err != nil {
		return nil, fmt.Errorf("parse DBC file %s: %w", path, err)
	}
	for _, w := range result.Warnings {
		log.Printf("DBC warning: %s: %v", path, w)
	}
	return New(result.Database), nil
}

// New builds a Decoder from an already-compiled database.
func New(db *descriptor.Database) *Decoder {
	d := &Decoder{
		byID:   make(map[uint32]*messageInfo),
		byName: make(map[string]*signalInfo),
	}
	for _, msg := range db.Messages {
		mi := &messageInfo{msg: msg}
		id := msg.ID & idMask
		for _, sig := range msg.Signals {
			si := precompute(sig, id)
			mi.signals = append(mi.signals, si)
			d.byName[sig.Name] = si
		}
		d.byID[id] = mi
	}
	return d
}

// precompute derives the sentinel patterns and range bounds once per signal.
// The all-ones pattern means "invalid" and all-ones-minus-one means
// "unavailable" -- but only when the corresponding physical value falls
// outside the declared [min, max], otherwise the pattern is a legitimate
// reading and the sentinel is unusable.
func precompute(sig *descriptor.Signal, msgID uint32) *signalInfo {
	si := &signalInfo{
		sig:      sig,
		msgID:    msgID,
		scaled:   sig.Scale != 1 || sig.Offset != 0,
		rangeMin: sig.Min,
		rangeMax: sig.Max,
		hasRange: sig.Min != 0 || sig.Max != 0,
	}

	bits := uint(sig.Length)
	if 64 <= bits {
		si.invalidRaw = ^uint64(0)
	} else {
		si.invalidRaw = (uint64(1) << bits) - 1
	}
	si.naRaw = si.invalidRaw - 1

	if si.hasRange {
		p := sig.ToPhysical(float64(si.invalidRaw))
		si.useInvalid = p < si.rangeMin || si.rangeMax < p
		p = sig.ToPhysical(float64(si.naRaw))
		si.useNA = p < si.rangeMin || si.rangeMax < p
	}

	if 0 < len(sig.ValueDescriptions) {
		m := &EnumMap{
			byLabel: make(map[string]int64, len(sig.ValueDescriptions)),
			byCode:  make(map[int64]string, len(sig.ValueDescriptions)),
		}
		for _, vd := range sig.ValueDescriptions {
			m.byLabel[vd.Description] = int64(vd.Value)
			m.byCode[int64(vd.Value)] = vd.Description
			m.labels = append(m.labels, vd.Description)
		}
		si.enums = m
	}

	return si
}

// HasMessage reports whether the database defines a message with the given
// (masked) id.
func (d *Decoder) HasMessage(id uint32) bool {
	_, have := d.byID[id&idMask]
	return have
}

// SignalsOf returns the names of the signals in the given message, in
// database order.
func (d *Decoder) SignalsOf(id uint32) []string {
	mi, have := d.byID[id&idMask]
	if !have {
		return nil
	}
	names := make([]string, 0, len(mi.signals))
	for _, si := range mi.signals {
		names = append(names, si.sig.Name)
	}
	return names
}

// MessageIDOf returns the id of the message containing the named signal.
func (d *Decoder) MessageIDOf(signal string) (uint32, bool) {
	si, have := d.byName[signal]
	if !have {
		return 0, false
	}
	return si.msgID, true
}

// EnumOf returns the named signal's value descriptions (nil if none).
func (d *Decoder) EnumOf(signal string) *EnumMap {
	si, have := d.byName[signal]
	if !have {
		return nil
	}
	return si.enums
}

// lastByte returns the index of the last payload byte a signal occupies,
// accounting for Motorola bit numbering (the start bit counts down within
// each byte).
func lastByte(sig *descriptor.Signal) int {
	start, length := int(sig.Start), int(sig.Length)
	if sig.IsBigEndian {
		first := start / 8
		rest := length - (start%8 + 1)
		if rest <= 0 {
			return first
		}
		return first + (rest+7)/8
	}
	return (start + length - 1) / 8
}

// Decode decodes a raw frame payload against the message with the given id.
// An unknown id yields an empty sequence.  Signals are returned in database
// order; a signal whose bits lie beyond the payload is logged and omitted,
// the rest of the frame still decodes.
func (d *Decoder) Decode(id uint32, data []byte) []Decoded {
	mi, have := d.byID[id&idMask]
	if !have {
		return nil
	}

	var payload can.Data
	copy(payload[:], data)

	out := make([]Decoded, 0, len(mi.signals))
	for _, si := range mi.signals {
		sig := si.sig
		if len(data) <= lastByte(sig) {
			log.Printf("signal %s needs bits beyond the %d-byte frame 0x%X; skipping",
				sig.Name, len(data), id)
			continue
		}

		rawBits := sig.UnmarshalUnsigned(payload)
		var raw float64
		if sig.IsSigned {
			raw = float64(sig.UnmarshalSigned(payload))
		} else {
			raw = float64(rawBits)
		}
		phys := sig.ToPhysical(raw)

		// Scaled signals emit as double.  Unscaled integral values stay
		// integers.
		var v vals.Value
		if si.scaled {
			v = vals.Float64(phys)
		} else {
			v = vals.FromFloat(phys)
		}

		q := si.status(rawBits, phys)
		util.Logf("decoded %s = %s (%s)", sig.Name, vals.ToText(v), q)

		out = append(out, Decoded{
			Signal:   sig.Name,
			Value:    v,
			Quality:  q,
			HasEnums: si.enums != nil,
		})
	}
	return out
}
