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

// Package emit formats emitted signals and writes them to the configured
// sinks.
package emit

import (
	"fmt"
	"io"
	"log"

	"github.com/Comcast/vssdag/eval"
	"github.com/Comcast/vssdag/vals"
)

// Text renders one emission as the standard log line.
func Text(e eval.Emitted) string {
	return fmt.Sprintf("[%s] VSS: %s = %s [%s]",
		e.Timestamp.Format("2006-01-02 15:04:05.000"),
		e.Path,
		vals.ToText(e.Value),
		e.Quality)
}

// JSON renders one emission as a JSON object of the path/value/quality
// triple.
func JSON(e eval.Emitted) string {
	return fmt.Sprintf(`{"path":%s,"value":%s,"quality":%s}`,
		vals.ToJSON(vals.String(e.Path)),
		vals.ToJSON(e.Value),
		vals.ToJSON(vals.String(e.Quality.String())))
}

// Sink consumes formatted emission lines.
type Sink interface {
	Emit(line string)
}

// WriterSink writes each line to an io.Writer (stderr by default in the
// CLI).
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Emit(line string) {
	if _, err := fmt.Fprintln(s.W, line); err != nil {
		log.Printf("emit write: %v", err)
	}
}

// Emitter fans one formatted line out to every sink.
type Emitter struct {
	JSONLines bool
	sinks     []Sink
}

// NewEmitter makes an Emitter over the given sinks.
func NewEmitter(jsonLines bool, sinks ...Sink) *Emitter {
	return &Emitter{JSONLines: jsonLines, sinks: sinks}
}

// AddSink appends another sink.
func (em *Emitter) AddSink(s Sink) {
	em.sinks = append(em.sinks, s)
}

// EmitAll formats and hands off a batch of emissions.
func (em *Emitter) EmitAll(es []eval.Emitted) {
	for _, e := range es {
		var line string
		if em.JSONLines {
			line = JSON(e)
		} else {
			line = Text(e)
		}
		for _, s := range em.sinks {
			s.Emit(line)
		}
	}
}
