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

// Package dag builds the signal dependency graph: one node per mapping,
// edges from each dependency to its dependents, and a stable topological
// order for the evaluator to walk.
package dag

import (
	"fmt"
	"strings"
	"time"

	"github.com/Comcast/vssdag/mapping"
)

// Node wraps one SignalMapping with graph links and the runtime scalars the
// evaluator mutates.  Only the evaluator goroutine touches the runtime
// fields.
type Node struct {
	Name    string
	Mapping *mapping.SignalMapping
	IsInput bool

	InDegree   int
	Dependents []*Node

	// Runtime state.
	HasNewData          bool
	LastUpdate          time.Time
	LastOutput          time.Time
	LastOutputValue     string
	LastProcess         time.Time
	NeedsPeriodicUpdate bool
}

// Graph owns the nodes; Dependents holds plain pointers into the same
// owned slice, so there are no cyclic owners.
type Graph struct {
	nodes  []*Node
	byName map[string]*Node
	order  []*Node
}

// Build constructs the graph from mappings, validates every dependency
// reference, and computes the processing order.  The mapping slice's order
// is the tie-break for the topological sort, which keeps the order stable
// across runs.
func Build(ms []*mapping.SignalMapping) (*Graph, error) {
	g := &Graph{
		byName: make(map[string]*Node, len(ms)),
	}

	for _, m := range ms {
		if _, have := g.byName[m.Signal]; have {
			return nil, fmt.Errorf("duplicate signal %q", m.Signal)
		}
		n := &Node{
			Name:    m.Signal,
			Mapping: m,
			IsInput: m.IsInput(),
		}
		g.byName[m.Signal] = n
		g.nodes = append(g.nodes, n)
	}

	for _, n := range g.nodes {
		for _, dep := range n.Mapping.DependsOn {
			target, have := g.byName[dep]
			if !have {
				return nil, fmt.Errorf("signal %q depends on unknown signal %q",
					n.Name, dep)
			}
			target.Dependents = append(target.Dependents, n)
			n.InDegree++
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

// sort runs Kahn's algorithm.  Zero-in-degree nodes enter the queue in
// insertion order and the queue is FIFO, so ties break deterministically.
func (g *Graph) sort() error {
	inDegrees := make(map[*Node]int, len(g.nodes))
	var queue []*Node
	for _, n := range g.nodes {
		inDegrees[n] = n.InDegree
		if n.InDegree == 0 {
			queue = append(queue, n)
		}
	}

	g.order = make([]*Node, 0, len(g.nodes))
	for 0 < len(queue) {
		n := queue[0]
		queue = queue[1:]
		g.order = append(g.order, n)

		for _, dep := range n.Dependents {
			inDegrees[dep]--
			if inDegrees[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(g.order) != len(g.nodes) {
		var stuck []string
		for _, n := range g.nodes {
			if 0 < inDegrees[n] {
				stuck = append(stuck, n.Name)
			}
		}
		return fmt.Errorf("cycle detected among signals: %s",
			strings.Join(stuck, ", "))
	}
	return nil
}

// Node returns the named node, or nil.
func (g *Graph) Node(name string) *Node {
	return g.byName[name]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Order returns the processing order.
func (g *Graph) Order() []*Node { return g.order }

// InputSignals returns the names of the input nodes, in insertion order.
func (g *Graph) InputSignals() []string {
	var names []string
	for _, n := range g.nodes {
		if n.IsInput {
			names = append(names, n.Name)
		}
	}
	return names
}

// MarkDirty sets the node's dirty bit and propagates it transitively through
// dependents.  Propagation stops at nodes that are already dirty, so it
// terminates even under heavy fan-out.
func (g *Graph) MarkDirty(name string) {
	n, have := g.byName[name]
	if !have {
		return
	}
	n.HasNewData = true
	propagate(n)
}

func propagate(n *Node) {
	for _, dep := range n.Dependents {
		if !dep.HasNewData {
			dep.HasNewData = true
			propagate(dep)
		}
	}
}
