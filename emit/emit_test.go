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

package emit

import (
	"strings"
	"testing"
	"time"

	"github.com/Comcast/vssdag/eval"
	"github.com/Comcast/vssdag/vals"
)

func sample() eval.Emitted {
	return eval.Emitted{
		Path:      "Vehicle.Speed",
		Value:     vals.Float64(90),
		Quality:   vals.QualityValid,
		Timestamp: time.Date(2021, 6, 1, 12, 30, 45, 123000000, time.UTC),
	}
}

func TestText(t *testing.T) {
	got := Text(sample())
	want := "[2021-06-01 12:30:45.123] VSS: Vehicle.Speed = 90 [valid]"
	if got != want {
		t.Fatalf("got %q, wanted %q", got, want)
	}
}

func TestTextQualities(t *testing.T) {
	e := sample()
	e.Quality = vals.QualityNotAvailable
	e.Value = vals.Empty()
	got := Text(e)
	if !strings.HasSuffix(got, "=  [not_available]") {
		t.Fatalf("got %q", got)
	}
}

func TestJSON(t *testing.T) {
	got := JSON(sample())
	want := `{"path":"Vehicle.Speed","value":90,"quality":"valid"}`
	if got != want {
		t.Fatalf("got %q, wanted %q", got, want)
	}
}

func TestJSONEmptyValue(t *testing.T) {
	e := sample()
	e.Value = vals.Empty()
	e.Quality = vals.QualityInvalid
	got := JSON(e)
	want := `{"path":"Vehicle.Speed","value":null,"quality":"invalid"}`
	if got != want {
		t.Fatalf("got %q, wanted %q", got, want)
	}
}

func TestEmitterFansOut(t *testing.T) {
	var a, b strings.Builder
	em := NewEmitter(false, WriterSink{W: &a})
	em.AddSink(WriterSink{W: &b})

	em.EmitAll([]eval.Emitted{sample(), sample()})

	if a.String() != b.String() {
		t.Fatal("sinks should see the same lines")
	}
	if got := strings.Count(a.String(), "\n"); got != 2 {
		t.Fatalf("wanted 2 lines, got %d", got)
	}
}
