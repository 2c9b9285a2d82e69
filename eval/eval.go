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

// Package eval runs the two-phase processing loop: apply incoming updates
// to the signal store, walk the dependency order invoking transforms, gate
// the outputs, and revisit signals that marked themselves pending.
package eval

import (
	"log"
	"strings"
	"time"

	"github.com/Comcast/vssdag/dag"
	"github.com/Comcast/vssdag/mapping"
	"github.com/Comcast/vssdag/metric"
	"github.com/Comcast/vssdag/script"
	"github.com/Comcast/vssdag/source"
	"github.com/Comcast/vssdag/util"
	"github.com/Comcast/vssdag/vals"
)

// Emitted is one output record.
type Emitted struct {
	Path      string
	Value     vals.Value
	Quality   vals.Quality
	Timestamp time.Time
}

// Evaluator owns the authoritative signal store, the graph's runtime state,
// and the script bridge.  It is single-threaded: all methods must be called
// from one goroutine.
type Evaluator struct {
	graph  *dag.Graph
	bridge *script.Bridge

	// The authoritative store for inputs and derived signals both.  The
	// script-side signal_values is a mirror; this map is the truth.
	store map[string]vals.QualifiedValue

	// Shared composite outputs being assembled field by field, and the
	// fields each one needs before it may be emitted.
	structs      map[string]*vals.Struct
	structFields map[string][]string

	// now is the scheduling/operator clock (monotonic); wall stamps
	// emissions.  Split so tests can drive time.
	now  func() time.Time
	wall func() time.Time
}

// New builds an Evaluator and compiles every node's transform (fail-fast).
func New(g *dag.Graph, b *script.Bridge) (*Evaluator, error) {
	if err := b.Compile(g.Order()); err != nil {
		return nil, err
	}

	log.Printf("signal graph: %d nodes", len(g.Nodes()))
	for _, n := range g.Order() {
		if 0 < len(n.Mapping.DependsOn) {
			log.Printf("  %s <- [%s]", n.Name, strings.Join(n.Mapping.DependsOn, ", "))
		} else {
			log.Printf("  %s", n.Name)
		}
	}

	e := &Evaluator{
		graph:        g,
		bridge:       b,
		store:        make(map[string]vals.QualifiedValue),
		structs:      make(map[string]*vals.Struct),
		structFields: make(map[string][]string),
		now:          time.Now,
		wall:         time.Now,
	}
	for _, n := range g.Nodes() {
		if n.Mapping.StructField != "" && n.Mapping.Datatype == vals.TypeStruct {
			path := structPath(n)
			e.structFields[path] = append(e.structFields[path], n.Mapping.StructField)
		}
	}
	return e, nil
}

// Value returns the current qualified value for a signal.
func (e *Evaluator) Value(name string) (vals.QualifiedValue, bool) {
	qv, have := e.store[name]
	return qv, have
}

// seconds renders t for the script's _current_time: seconds since epoch as
// a double with microsecond precision.
func seconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// ProcessSignalUpdates is one tick: intake, schedule, execute, then the
// deferred second phase.  It is the sole mutator of the store and node
// runtime state.  Calling it with no updates drives periodic-only signals.
func (e *Evaluator) ProcessSignalUpdates(updates []source.Update) []Emitted {
	var out []Emitted

	// Intake: apply updates to input nodes and mark the graph dirty.
	for _, u := range updates {
		n := e.graph.Node(u.Signal)
		if n == nil {
			util.Logf("ignoring unknown signal %q", u.Signal)
			continue
		}
		if !n.IsInput {
			continue
		}
		e.store[u.Signal] = vals.QualifiedValue{
			Value:     u.Value,
			Quality:   u.Quality,
			Timestamp: u.Timestamp,
		}
		if u.Quality == vals.QualityValid {
			util.Logf("input %s = %s", u.Signal, vals.ToText(u.Value))
		} else {
			util.Logf("input %s status=%s", u.Signal, u.Quality)
		}
		n.LastUpdate = u.Timestamp
		e.graph.MarkDirty(u.Signal)
		metric.UpdatesProcessed.Inc()
	}

	now := e.now()

	// Schedule: decide which nodes run this tick.  Marking a node also
	// dirties its dependents, so downstream nodes run in the same walk.
	marked := make(map[*dag.Node]bool)
	for _, n := range e.graph.Order() {
		needs := n.HasNewData

		if n.Mapping.Trigger == mapping.Periodic || n.Mapping.Trigger == mapping.Both {
			if 0 < n.Mapping.IntervalMS && e.depsPresent(n) {
				if n.LastProcess.IsZero() {
					needs = true
					n.NeedsPeriodicUpdate = true
				} else if time.Duration(n.Mapping.IntervalMS)*time.Millisecond <= now.Sub(n.LastProcess) {
					needs = true
					n.NeedsPeriodicUpdate = true
				}
			}
		}

		if needs {
			marked[n] = true
			for _, dep := range n.Dependents {
				dep.HasNewData = true
			}
		}
	}

	// Execute: walk the order; run every marked-or-dirty node.
	for _, n := range e.graph.Order() {
		if !marked[n] && !n.HasNewData {
			continue
		}

		res := e.processNode(n, now)

		if n.NeedsPeriodicUpdate {
			n.LastProcess = now
			n.NeedsPeriodicUpdate = false
		}

		// A node that marked itself pending is waiting on wall-clock
		// progress; its output belongs to phase 2, not to this pass.
		if res != nil && e.bridge.IsPending(n.Name) {
			res = nil
		}

		if res != nil {
			interval := time.Duration(n.Mapping.IntervalMS) * time.Millisecond
			emit := n.LastOutput.IsZero() ||
				interval == 0 ||
				interval <= now.Sub(n.LastOutput)
			if emit {
				out = append(out, *res)
				n.LastOutput = now
				n.LastOutputValue = vals.ToText(res.Value)
			} else {
				util.Logf("throttled %s (%s < %s)", n.Name, now.Sub(n.LastOutput), interval)
			}
		}
		n.HasNewData = false
	}

	// Phase 2: revisit signals that asked for deferred re-evaluation
	// (time-based operators like delayed()).  Emit only on becoming valid
	// with a first-or-changed value, so re-running without wall-clock
	// progress emits nothing.
	for _, name := range e.bridge.Pending() {
		n := e.graph.Node(name)
		if n == nil || n.IsInput {
			continue
		}
		util.Logf("phase 2: re-evaluating %s", name)

		res := e.processNode(n, now)
		if res == nil || res.Quality != vals.QualityValid {
			continue
		}
		text := vals.ToText(res.Value)
		if n.LastOutput.IsZero() || n.LastOutputValue != text {
			out = append(out, *res)
			n.LastOutput = now
			n.LastOutputValue = text
		}
	}

	metric.SignalsEmitted.Add(float64(len(out)))
	return out
}

// depsPresent reports whether every dependency has a stored value, which
// gates periodic processing.
func (e *Evaluator) depsPresent(n *dag.Node) bool {
	for _, dep := range n.Mapping.DependsOn {
		if _, have := e.store[dep]; !have {
			return false
		}
	}
	return true
}

// processNode invokes one transform and reconciles the store.  A script
// runtime error is logged and the node yields nothing this tick; dependents
// keep seeing the previously stored value.
func (e *Evaluator) processNode(n *dag.Node, now time.Time) *Emitted {
	res, err := e.bridge.Invoke(n, e.store, seconds(now))
	if err != nil {
		log.Printf("transform error for signal %s: %v", n.Name, err)
		metric.ScriptErrors.Inc()
		return nil
	}
	if res == nil {
		return nil
	}

	// Reconcile: only the executing node's own slot is read back; a
	// transform writing any other signal's slot has no effect on the
	// authoritative store.
	provTarget := n.Mapping.Datatype
	if n.Mapping.StructField != "" {
		provTarget = vals.TypeUnspecified
	}
	if v, have := e.bridge.Provided(n.Name, provTarget); have {
		e.store[n.Name] = vals.QualifiedValue{
			Value:     v,
			Quality:   vals.QualityValid,
			Timestamp: e.wall(),
		}
	}

	em := &Emitted{
		Path:      res.Path,
		Value:     res.Value,
		Quality:   res.Status,
		Timestamp: e.wall(),
	}

	// A struct-field contributor writes its field into the shared
	// composite, and the whole composite is what goes out.  Nothing is
	// emitted until every mapped field has been written at least once: a
	// partial composite must never reach a consumer.
	if n.Mapping.StructField != "" && n.Mapping.Datatype == vals.TypeStruct {
		if res.Value.IsEmpty() {
			return nil
		}
		path := structPath(n)
		acc, have := e.structs[path]
		if !have {
			acc = vals.NewStruct(n.Mapping.StructType)
			e.structs[path] = acc
		}
		acc.Set(n.Mapping.StructField, res.Value)
		if !e.structComplete(path) {
			util.Logf("holding %s: %d/%d fields set",
				path, acc.Len(), len(e.structFields[path]))
			return nil
		}
		em.Path = path
		em.Value = vals.StructVal(acc)
	}

	return em
}

// structComplete reports whether every mapped field of a composite has been
// written at least once.
func (e *Evaluator) structComplete(path string) bool {
	acc := e.structs[path]
	for _, field := range e.structFields[path] {
		if _, have := acc.Get(field); !have {
			return false
		}
	}
	return true
}

// structPath names the composite output a struct-field node contributes to:
// the node's name with its ".<field>" suffix stripped, or the struct type
// when the name doesn't follow that convention.
func structPath(n *dag.Node) string {
	suffix := "." + n.Mapping.StructField
	if strings.HasSuffix(n.Name, suffix) {
		return strings.TrimSuffix(n.Name, suffix)
	}
	return n.Mapping.StructType
}
