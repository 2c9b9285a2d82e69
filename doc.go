// Package vssdag turns vehicle-bus signals into typed, quality-tagged VSS
// signals via a user-authored transform pipeline.
//
// Frames are decoded against a CAN DBC database ('dbc', 'canbus'), flow
// through a dependency-ordered signal graph ('dag'), are transformed by
// ECMAScript fragments in an embedded interpreter ('script'), and are
// evaluated and emitted by a two-phase processing loop ('eval', 'emit').
//
// The command-line entry point is in cmd/vssdag.
package vssdag
