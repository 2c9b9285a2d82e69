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

package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Comcast/vssdag/dag"
	"github.com/Comcast/vssdag/mapping"
)

// transformSource generates the script text that defines one node's
// transform closure.  The closure receives the input value (null for
// derived signals), runs the declared transform, publishes the result via
// provide(), and returns the {path, value, type, status} record.
func transformSource(n *dag.Node) string {
	var b strings.Builder
	name := quoteJS(n.Name)
	dt := int(n.Mapping.Datatype)

	fmt.Fprintf(&b, "transform_functions[%s] = function(value) {\n", name)

	// Input signals see their own quality; a non-VALID input reads as null.
	if n.IsInput {
		fmt.Fprintf(&b, "\tvar my_status = signal_status[%s];\n", name)
		b.WriteString("\tif (is_nil(my_status)) my_status = STATUS_VALID;\n")
	} else {
		b.WriteString("\tvar my_status = STATUS_VALID;\n")
	}

	switch tr := n.Mapping.Transform.(type) {
	case mapping.CodeTransform:
		if n.IsInput {
			b.WriteString("\tvar x = value;\n")
			b.WriteString("\tif (my_status !== STATUS_VALID) x = null;\n")
		} else {
			b.WriteString("\tvar x = null;\n")
		}
		if strings.Contains(tr.Source, "\n") {
			b.WriteString("\tvar result = (function() {\n")
			for _, line := range strings.Split(tr.Source, "\n") {
				if line != "" {
					b.WriteString("\t\t" + line + "\n")
				}
			}
			b.WriteString("\t})();\n")
			b.WriteString("\tif (!is_nil(result)) provide(result);\n")
		} else {
			fmt.Fprintf(&b, "\tvar result = (%s);\n", tr.Source)
			b.WriteString("\tprovide(result);\n")
		}

	case mapping.ValueMapTransform:
		b.WriteString("\tvar mapping_table = {\n")
		for _, e := range tr.Entries {
			fmt.Fprintf(&b, "\t\t%s: %s,\n", quoteJS(e.From), targetLiteral(e.To))
		}
		b.WriteString("\t};\n")
		b.WriteString("\tvar result = mapping_table[String(value)];\n")
		b.WriteString("\tif (result === undefined && typeof value === 'number') {\n")
		b.WriteString("\t\tfor (var k in mapping_table) {\n")
		b.WriteString("\t\t\tif (Number(k) === value) { result = mapping_table[k]; break; }\n")
		b.WriteString("\t\t}\n")
		b.WriteString("\t}\n")
		b.WriteString("\tif (result === undefined) result = null;\n")
		b.WriteString("\tif (!is_nil(result)) provide(result);\n")

	default: // DirectTransform
		if n.IsInput {
			b.WriteString("\tvar result = value;\n")
			b.WriteString("\tif (my_status !== STATUS_VALID) result = null;\n")
		} else {
			// Direct is the identity on the input; a derived signal has
			// none.
			b.WriteString("\tvar result = null;\n")
			b.WriteString("\tmy_status = STATUS_INVALID;\n")
		}
		b.WriteString("\tprovide(result);\n")
	}

	fmt.Fprintf(&b, "\treturn create_vss_signal(%s, result, %d, my_status);\n", name, dt)
	b.WriteString("};\n")
	return b.String()
}

// targetLiteral renders a value-mapping target as a script literal:
// booleans and numbers stay bare, everything else is a string.
func targetLiteral(to string) string {
	if to == "true" || to == "false" {
		return to
	}
	if _, err := strconv.ParseFloat(to, 64); err == nil {
		return to
	}
	return quoteJS(to)
}

// quoteJS renders s as a single-quoted script string literal.
func quoteJS(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
