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

// Package metric holds the pipeline's Prometheus counters and the optional
// /metrics endpoint.
package metric

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesReceived counts CAN frames read off the bus (before the
	// subscribed-id filter).
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vssdag_frames_received_total",
		Help: "CAN frames read from the bus.",
	})

	// SignalsDecoded counts signal values decoded from subscribed frames.
	SignalsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vssdag_signals_decoded_total",
		Help: "Signal values decoded from subscribed frames.",
	})

	// QueueDropped counts updates dropped because the ingress queue was
	// full.
	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vssdag_queue_dropped_total",
		Help: "Signal updates dropped on ingress queue overflow.",
	})

	// UpdatesProcessed counts updates the evaluator took in.
	UpdatesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vssdag_updates_processed_total",
		Help: "Signal updates applied by the evaluator.",
	})

	// SignalsEmitted counts emitted output records.
	SignalsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vssdag_signals_emitted_total",
		Help: "Output signals emitted.",
	})

	// ScriptErrors counts transform runtime errors.
	ScriptErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vssdag_script_errors_total",
		Help: "Transform runtime errors.",
	})
)

// Serve exposes /metrics on the given address.  Errors are logged, not
// fatal: metrics are a convenience, the pipeline runs without them.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics endpoint on %s: %v", addr, err)
		}
	}()
}
