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

// Package script owns the embedded ECMAScript runtime (Goja, which is also
// what the sheens interpreters use) and the marshalling boundary between
// host values and script space.
//
// The runtime is strictly single-threaded: only the evaluator goroutine may
// call into a Bridge.
package script

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/Comcast/vssdag/dag"
	"github.com/Comcast/vssdag/vals"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

// Result is a transform's returned record.
type Result struct {
	Path   string
	Value  vals.Value
	Type   vals.ValueType
	Status vals.Quality
}

// Bridge wraps one Goja runtime with the operator library loaded and the
// per-node transforms compiled.
type Bridge struct {
	rt         *goja.Runtime
	transforms map[string]goja.Callable
}

// New makes a Bridge with the operator environment installed.
func New() (*Bridge, error) {
	b := &Bridge{
		rt:         goja.New(),
		transforms: make(map[string]goja.Callable),
	}

	b.setConstants()

	// cron_next parses a crontab expression with gorhill/cronexpr and
	// returns the next firing time as RFC3339Nano (UTC).
	b.rt.Set("cron_next", func(expr string) string {
		c, err := cronexpr.Parse(expr)
		if err != nil {
			panic(b.rt.ToValue(err.Error()))
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	})

	// log writes the given value to the process log, for transform
	// debugging.
	b.rt.Set("log", func(x goja.Value) {
		js, err := json.Marshal(x.Export())
		if err != nil {
			log.Printf("script.log (can't marshal: %s)", err)
			return
		}
		log.Printf("script: %s", js)
	})

	if _, err := b.rt.RunString(envSource); err != nil {
		return nil, fmt.Errorf("install script environment: %w", err)
	}
	return b, nil
}

func (b *Bridge) setConstants() {
	for name, q := range map[string]vals.Quality{
		"STATUS_UNKNOWN":       vals.QualityUnknown,
		"STATUS_VALID":         vals.QualityValid,
		"STATUS_INVALID":       vals.QualityInvalid,
		"STATUS_NOT_AVAILABLE": vals.QualityNotAvailable,
		"STATUS_STALE":         vals.QualityStale,
		"STATUS_OUT_OF_RANGE":  vals.QualityOutOfRange,
	} {
		b.rt.Set(name, int(q))
	}

	for name, n := range map[string]int{
		"STRATEGY_PROPAGATE":    0,
		"STRATEGY_HOLD":         1,
		"STRATEGY_HOLD_TIMEOUT": 2,
	} {
		b.rt.Set(name, n)
	}

	for name, t := range map[string]vals.ValueType{
		"TYPE_UNSPECIFIED":  vals.TypeUnspecified,
		"TYPE_STRING":       vals.TypeString,
		"TYPE_BOOL":         vals.TypeBool,
		"TYPE_INT8":         vals.TypeInt8,
		"TYPE_INT16":        vals.TypeInt16,
		"TYPE_INT32":        vals.TypeInt32,
		"TYPE_INT64":        vals.TypeInt64,
		"TYPE_UINT8":        vals.TypeUint8,
		"TYPE_UINT16":       vals.TypeUint16,
		"TYPE_UINT32":       vals.TypeUint32,
		"TYPE_UINT64":       vals.TypeUint64,
		"TYPE_FLOAT":        vals.TypeFloat,
		"TYPE_DOUBLE":       vals.TypeDouble,
		"TYPE_STRUCT":       vals.TypeStruct,
		"TYPE_STRING_ARRAY": vals.TypeStringArray,
		"TYPE_BOOL_ARRAY":   vals.TypeBoolArray,
		"TYPE_INT8_ARRAY":   vals.TypeInt8Array,
		"TYPE_INT16_ARRAY":  vals.TypeInt16Array,
		"TYPE_INT32_ARRAY":  vals.TypeInt32Array,
		"TYPE_INT64_ARRAY":  vals.TypeInt64Array,
		"TYPE_UINT8_ARRAY":  vals.TypeUint8Array,
		"TYPE_UINT16_ARRAY": vals.TypeUint16Array,
		"TYPE_UINT32_ARRAY": vals.TypeUint32Array,
		"TYPE_UINT64_ARRAY": vals.TypeUint64Array,
		"TYPE_FLOAT_ARRAY":  vals.TypeFloatArray,
		"TYPE_DOUBLE_ARRAY": vals.TypeDoubleArray,
		"TYPE_STRUCT_ARRAY": vals.TypeStructArray,
	} {
		b.rt.Set(name, int(t))
	}
}

// Compile generates and compiles the transform closure for every node.  Any
// compilation failure aborts (fail-fast): a broken transform should stop the
// process at startup, not at first use.
func (b *Bridge) Compile(nodes []*dag.Node) error {
	for _, n := range nodes {
		src := transformSource(n)
		if _, err := b.rt.RunString(src); err != nil {
			return fmt.Errorf("compile transform for signal %q: %w", n.Name, err)
		}
		fn := b.rt.Get("transform_functions").ToObject(b.rt).Get(n.Name)
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("transform for signal %q did not compile to a function", n.Name)
		}
		b.transforms[n.Name] = callable
	}
	return nil
}

// Invoke runs one node's transform against the current store.  now is
// seconds with microsecond precision from the evaluator's monotonic clock.
//
// A nil Result with nil error means the transform returned no record.  An
// error is a script runtime error: the caller logs it and the node yields
// nothing this tick.
func (b *Bridge) Invoke(n *dag.Node, store map[string]vals.QualifiedValue, now float64) (*Result, error) {
	fn, have := b.transforms[n.Name]
	if !have {
		return nil, fmt.Errorf("no compiled transform for signal %q", n.Name)
	}

	b.rt.Set("_current_signal", n.Name)
	b.rt.Set("_current_time", now)

	input := goja.Null()
	if n.IsInput {
		qv, have := store[n.Name]
		if have {
			statusObj := b.rt.Get("signal_status").ToObject(b.rt)
			statusObj.Set(n.Name, int(qv.Quality))
			if qv.IsValid() {
				input = b.jsValue(qv.Value)
			}
		}
	}

	depsObj := b.rt.NewObject()
	depsStatus := b.rt.NewObject()
	for _, dep := range n.Mapping.DependsOn {
		qv, have := store[dep]
		if have && qv.IsValid() {
			depsObj.Set(dep, b.jsValue(qv.Value))
		} else {
			depsObj.Set(dep, goja.Null())
		}
		if have {
			depsStatus.Set(dep, int(qv.Quality))
		}
	}
	b.rt.Set("deps", depsObj)
	b.rt.Set("deps_status", depsStatus)

	res, err := fn(goja.Undefined(), input)
	if err != nil {
		return nil, err
	}
	if res == nil || goja.IsNull(res) || goja.IsUndefined(res) {
		return nil, nil
	}

	obj := res.ToObject(b.rt)
	r := &Result{
		Path:   obj.Get("path").String(),
		Type:   vals.ValueType(obj.Get("type").ToInteger()),
		Status: vals.Quality(obj.Get("status").ToInteger()),
	}

	// Struct-field contributors return the field's scalar, not a struct;
	// leave their value uncoerced for the evaluator to place.
	target := r.Type
	if n.Mapping.StructField != "" {
		target = vals.TypeUnspecified
	}
	r.Value = b.hostValue(obj.Get("value"), target)
	if st := r.Value.Struct(); st != nil && n.Mapping.StructType != "" {
		st.TypeName = n.Mapping.StructType
	}
	return r, nil
}

// Provided reads back the slot the transform just wrote via provide(),
// coerced to the node's declared type.  The second result is false when the
// slot is empty.
func (b *Bridge) Provided(name string, t vals.ValueType) (vals.Value, bool) {
	obj := b.rt.Get("signal_values").ToObject(b.rt)
	v := b.hostValue(obj.Get(name), t)
	return v, !v.IsEmpty()
}

// Pending returns the names currently in the script-side pending set.
func (b *Bridge) Pending() []string {
	return b.rt.Get("signals_pending_reevaluation").ToObject(b.rt).Keys()
}

// IsPending reports whether one signal is in the pending set.
func (b *Bridge) IsPending(name string) bool {
	v := b.rt.Get("signals_pending_reevaluation").ToObject(b.rt).Get(name)
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// jsValue marshals a host value into script space.  The empty marker maps
// to null.
func (b *Bridge) jsValue(v vals.Value) goja.Value {
	t := v.Type()
	switch {
	case v.IsEmpty():
		return goja.Null()
	case t == vals.TypeBool:
		return b.rt.ToValue(v.Bool())
	case t == vals.TypeString:
		return b.rt.ToValue(v.Str())
	case t.IsSigned():
		return b.rt.ToValue(v.Int())
	case t.IsUnsigned():
		u := v.Uint()
		if u <= math.MaxInt64 {
			return b.rt.ToValue(int64(u))
		}
		return b.rt.ToValue(float64(u))
	case t.IsFloat():
		return b.rt.ToValue(v.Float())
	case t == vals.TypeStruct:
		obj := b.rt.NewObject()
		st := v.Struct()
		for _, name := range st.Fields() {
			fv, _ := st.Get(name)
			obj.Set(name, b.jsValue(fv))
		}
		return obj
	case t.IsArray():
		items := make([]interface{}, 0, len(v.Items()))
		for _, el := range v.Items() {
			items = append(items, b.jsValue(el))
		}
		return b.rt.NewArray(items...)
	}
	return goja.Null()
}

// hostValue marshals a script value back to a host value, coercing to the
// target type when one is declared.  Object key order carries into Struct
// field order.
func (b *Bridge) hostValue(v goja.Value, target vals.ValueType) vals.Value {
	if v == nil || goja.IsNull(v) || goja.IsUndefined(v) {
		return vals.Empty()
	}

	var raw vals.Value
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() != "String" &&
		obj.ClassName() != "Number" && obj.ClassName() != "Boolean" {
		if obj.ClassName() == "Array" {
			length := int(obj.Get("length").ToInteger())
			elemTarget := target.Elem()
			items := make([]vals.Value, 0, length)
			for i := 0; i < length; i++ {
				items = append(items, b.hostValue(obj.Get(fmt.Sprintf("%d", i)), elemTarget))
			}
			t := target
			if !t.IsArray() {
				t = vals.TypeDoubleArray
			}
			return vals.Array(t, items)
		}
		st := vals.NewStruct("")
		for _, key := range obj.Keys() {
			st.Set(key, b.hostValue(obj.Get(key), vals.TypeUnspecified))
		}
		raw = vals.StructVal(st)
		return vals.Coerce(raw, target)
	}

	switch x := v.Export().(type) {
	case bool:
		raw = vals.Bool(x)
	case int64:
		raw = vals.Int64(x)
	case float64:
		raw = vals.Float64(x)
	case string:
		raw = vals.String(x)
	default:
		return vals.Empty()
	}
	return vals.Coerce(raw, target)
}
