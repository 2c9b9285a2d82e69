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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Comcast/vssdag/dbc"
	"github.com/Comcast/vssdag/vals"

	"gopkg.in/yaml.v2"
)

type rawDoc struct {
	Mappings []rawMapping `yaml:"mappings"`
}

type rawSource struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

type rawTransform struct {
	Code string `yaml:"code"`
	// math is the legacy alias of code.
	Math    string       `yaml:"math"`
	Mapping []rawMapPair `yaml:"mapping"`
}

type rawMapPair struct {
	From interface{} `yaml:"from"`
	To   interface{} `yaml:"to"`
}

type rawMapping struct {
	Signal        string        `yaml:"signal"`
	Source        *rawSource    `yaml:"source"`
	Datatype      string        `yaml:"datatype"`
	IntervalMS    int           `yaml:"interval_ms"`
	DependsOn     []string      `yaml:"depends_on"`
	UpdateTrigger string        `yaml:"update_trigger"`
	Transform     *rawTransform `yaml:"transform"`
	StructType    string        `yaml:"struct_type"`
	StructField   string        `yaml:"struct_field"`
}

// LoadFile reads a mapping document.  The decoder (which may be nil when no
// database is in play) resolves enum labels appearing in value-mapping keys.
//
// The returned slice preserves document order, which is what keeps the
// topological order stable across runs.
func LoadFile(path string, dec *dbc.Decoder) ([]*SignalMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping file %s: %w", path, err)
	}
	return Load(data, dec)
}

// Load parses mapping-document bytes.  See LoadFile.
func Load(data []byte, dec *dbc.Decoder) ([]*SignalMapping, error) {
	var doc rawDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping document: %w", err)
	}
	if doc.Mappings == nil {
		return nil, fmt.Errorf("no 'mappings' section in mapping document")
	}

	seen := make(map[string]bool, len(doc.Mappings))
	ms := make([]*SignalMapping, 0, len(doc.Mappings))
	for i, raw := range doc.Mappings {
		m, err := convert(raw, dec)
		if err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
		if seen[m.Signal] {
			return nil, fmt.Errorf("duplicate mapping for signal %q", m.Signal)
		}
		seen[m.Signal] = true
		ms = append(ms, m)
	}
	return ms, nil
}

func convert(raw rawMapping, dec *dbc.Decoder) (*SignalMapping, error) {
	m := &SignalMapping{
		Signal:      raw.Signal,
		IntervalMS:  raw.IntervalMS,
		DependsOn:   raw.DependsOn,
		StructType:  raw.StructType,
		StructField: raw.StructField,
	}

	if raw.Source != nil {
		m.Source = SignalSource{Type: raw.Source.Type, Name: raw.Source.Name}
	}

	// The legacy schema omits datatype and means double.
	dt := raw.Datatype
	if dt == "" {
		dt = "double"
	}
	t, err := vals.ParseValueType(dt)
	if err != nil {
		return nil, fmt.Errorf("signal %q: %w", raw.Signal, err)
	}
	m.Datatype = t

	switch raw.UpdateTrigger {
	case "", "on_dependency":
		m.Trigger = OnDependency
	case "periodic":
		m.Trigger = Periodic
	case "both":
		m.Trigger = Both
	default:
		return nil, fmt.Errorf("signal %q: unknown update_trigger %q",
			raw.Signal, raw.UpdateTrigger)
	}

	m.Transform, err = convertTransform(raw, dec)
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func convertTransform(raw rawMapping, dec *dbc.Decoder) (Transform, error) {
	tr := raw.Transform
	if tr == nil {
		return DirectTransform{}, nil
	}
	switch {
	case tr.Code != "":
		return CodeTransform{Source: tr.Code}, nil
	case tr.Math != "":
		return CodeTransform{Source: tr.Math}, nil
	case tr.Mapping != nil:
		vm := ValueMapTransform{Entries: make([]ValueMapEntry, 0, len(tr.Mapping))}
		for _, pair := range tr.Mapping {
			from, err := resolveFrom(raw, pair.From, dec)
			if err != nil {
				return nil, err
			}
			vm.Entries = append(vm.Entries, ValueMapEntry{
				From: from,
				To:   stringify(pair.To),
			})
		}
		return vm, nil
	}
	return DirectTransform{}, nil
}

// resolveFrom turns a value-mapping key into its stringified form.  A
// non-numeric key on a DBC-sourced signal must be one of the signal's enum
// labels and resolves to the label's raw code.
func resolveFrom(raw rawMapping, from interface{}, dec *dbc.Decoder) (string, error) {
	s := stringify(from)
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s, nil
	}
	if s == "true" || s == "false" {
		return s, nil
	}
	if raw.Source == nil || raw.Source.Type != "dbc" || dec == nil {
		return s, nil
	}

	enums := dec.EnumOf(raw.Source.Name)
	if enums == nil {
		return "", fmt.Errorf("signal %q: mapping key %q is not numeric and signal %q has no enum labels",
			raw.Signal, s, raw.Source.Name)
	}
	code, have := enums.Code(s)
	if !have {
		return "", fmt.Errorf("signal %q: unknown enum label %q for %q (valid labels: %s)",
			raw.Signal, s, raw.Source.Name, strings.Join(enums.Labels(), ", "))
	}
	return strconv.FormatInt(code, 10), nil
}

// stringify renders a YAML scalar the way the script-side mapping table will
// look it up.
func stringify(x interface{}) string {
	switch v := x.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", x)
}
