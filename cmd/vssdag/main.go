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

// vssdag reads CAN frames, runs them through the mapping pipeline, and
// emits VSS signals.
//
//	vssdag [flags] <database_file> <mapping_file> <bus_interface>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/vssdag/canbus"
	"github.com/Comcast/vssdag/dag"
	"github.com/Comcast/vssdag/dbc"
	"github.com/Comcast/vssdag/emit"
	"github.com/Comcast/vssdag/eval"
	"github.com/Comcast/vssdag/mapping"
	"github.com/Comcast/vssdag/metric"
	"github.com/Comcast/vssdag/script"
	"github.com/Comcast/vssdag/util"
)

func main() {
	var (
		jsonLines = flag.Bool("json", false, "emit JSON lines instead of text")
		out       = flag.String("out", "stderr", "line sink: stderr or stdout")
		mqttURL   = flag.String("mqtt", "", "optional MQTT broker URL to publish emissions to")
		mqttTopic = flag.String("mqtt-topic", "vssdag/signals", "MQTT topic for emissions")
		wsAddr    = flag.String("ws", "", "optional address to stream emissions over WebSocket")
		metricsAt = flag.String("metrics", "", "optional address for the Prometheus /metrics endpoint")
		poll      = flag.Duration("poll", 10*time.Millisecond, "evaluator poll cadence")
		heartbeat = flag.Duration("heartbeat", 50*time.Millisecond, "periodic-signal heartbeat cadence")
		verbose   = flag.Bool("v", false, "verbose per-signal logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <database_file> <mapping_file> <bus_interface>\n",
			os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(1)
	}
	util.Logging = *verbose

	if err := run(flag.Arg(0), flag.Arg(1), flag.Arg(2),
		*jsonLines, *out, *mqttURL, *mqttTopic, *wsAddr, *metricsAt,
		*poll, *heartbeat); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

func run(dbcFile, mappingFile, iface string,
	jsonLines bool, out, mqttURL, mqttTopic, wsAddr, metricsAt string,
	poll, heartbeat time.Duration) error {

	log.Printf("starting vssdag: database=%s mappings=%s bus=%s",
		dbcFile, mappingFile, iface)

	dec, err := dbc.ParseFile(dbcFile)
	if err != nil {
		return err
	}

	ms, err := mapping.LoadFile(mappingFile, dec)
	if err != nil {
		return err
	}

	graph, err := dag.Build(ms)
	if err != nil {
		return err
	}

	bridge, err := script.New()
	if err != nil {
		return err
	}

	ev, err := eval.New(graph, bridge)
	if err != nil {
		return err
	}

	var w *os.File
	switch out {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		return fmt.Errorf("unknown output sink %q", out)
	}
	emitter := emit.NewEmitter(jsonLines, emit.WriterSink{W: w})

	if mqttURL != "" {
		sink, err := emit.NewMQTTSink(mqttURL, "vssdag", mqttTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		emitter.AddSink(sink)
	}
	if wsAddr != "" {
		emitter.AddSink(emit.NewWSSink(wsAddr))
	}
	if metricsAt != "" {
		metric.Serve(metricsAt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := canbus.New(iface, dec, ms)
	if err := src.Init(ctx); err != nil {
		return err
	}
	defer src.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	pollTick := time.NewTicker(poll)
	defer pollTick.Stop()
	heartbeatTick := time.NewTicker(heartbeat)
	defer heartbeatTick.Stop()

	for {
		select {
		case sig := <-sigs:
			log.Printf("received %s; shutting down", sig)
			src.Stop()
			// Drain what's already queued before exiting.
			emitter.EmitAll(ev.ProcessSignalUpdates(src.Poll()))
			return nil

		case <-pollTick.C:
			if updates := src.Poll(); 0 < len(updates) {
				emitter.EmitAll(ev.ProcessSignalUpdates(updates))
			}

		case <-heartbeatTick.C:
			// Drives periodic-only signals and pending re-evaluations
			// even when the bus is quiet.
			emitter.EmitAll(ev.ProcessSignalUpdates(nil))
		}
	}
}
