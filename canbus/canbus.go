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

// Package canbus is the bus ingress: a SocketCAN reader that filters frames
// to the subscribed message ids, decodes them, and queues the resulting
// updates for the evaluator to poll.
package canbus

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Comcast/vssdag/dbc"
	"github.com/Comcast/vssdag/mapping"
	"github.com/Comcast/vssdag/metric"
	"github.com/Comcast/vssdag/source"
	"github.com/Comcast/vssdag/util"

	"go.einride.tech/can/pkg/socketcan"
)

const (
	// pollBatch bounds how many updates one Poll returns.  It bounds
	// per-call latency, not throughput.
	pollBatch = 100

	// queueDepth is the capacity of the ingress queue.  The reader drops
	// (and counts) updates when the evaluator falls this far behind.
	queueDepth = 1024
)

// Source reads frames from one CAN interface.  A single reader goroutine
// blocks on the socket; the evaluator drains the queue via Poll.
type Source struct {
	iface string
	dec   *dbc.Decoder

	// From database-level signal name to external signal name.
	exportName map[string]string
	ids        map[uint32]bool

	conn    net.Conn
	updates chan source.Update
	closing chan struct{}
	done    chan struct{}
	stop    sync.Once
}

// New builds a Source for the mappings whose source type is "dbc".
func New(iface string, dec *dbc.Decoder, ms []*mapping.SignalMapping) *Source {
	s := &Source{
		iface:      iface,
		dec:        dec,
		exportName: make(map[string]string),
		ids:        make(map[uint32]bool),
		updates:    make(chan source.Update, queueDepth),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, m := range ms {
		if m.Source.Type != "dbc" || !m.IsInput() {
			continue
		}
		s.exportName[m.Source.Name] = m.Signal
		if id, have := dec.MessageIDOf(m.Source.Name); have {
			s.ids[id] = true
		} else {
			log.Printf("signal %s not found in the database; it will never update",
				m.Source.Name)
		}
	}
	return s
}

// Init opens the raw socket and starts the reader.
func (s *Source) Init(ctx context.Context) error {
	if len(s.ids) == 0 {
		log.Printf("no messages to monitor on %s", s.iface)
		return nil
	}

	conn, err := socketcan.DialContext(ctx, "can", s.iface)
	if err != nil {
		return fmt.Errorf("open CAN interface %s: %w", s.iface, err)
	}
	s.conn = conn

	log.Printf("monitoring %d message ids on %s for %d signals",
		len(s.ids), s.iface, len(s.exportName))

	go s.readLoop()
	return nil
}

// readLoop blocks on the socket until Stop closes it.  A read error other
// than shutdown is logged and ends the reader; the read is not retried.
func (s *Source) readLoop() {
	defer close(s.done)

	rx := socketcan.NewReceiver(s.conn)
	for rx.Receive() {
		frame := rx.Frame()
		metric.FramesReceived.Inc()

		id := frame.ID & 0x1FFFFFFF
		if !s.ids[id] {
			continue
		}

		length := int(frame.Length)
		if len(frame.Data) < length {
			length = len(frame.Data)
		}
		now := time.Now()
		for _, d := range s.dec.Decode(id, frame.Data[:length]) {
			name, have := s.exportName[d.Signal]
			if !have {
				continue
			}
			metric.SignalsDecoded.Inc()
			u := source.Update{
				Signal:    name,
				Value:     d.Value,
				Quality:   d.Quality,
				Timestamp: now,
			}
			select {
			case s.updates <- u:
				util.Logf("enqueued %s (%s) = %s [%s]",
					name, d.Signal, d.Value.Type(), d.Quality)
			default:
				metric.QueueDropped.Inc()
			}
		}
	}
	if err := rx.Err(); err != nil {
		select {
		case <-s.closing:
			// Expected: Stop closed the socket under us.
		default:
			log.Printf("CAN receive on %s: %v", s.iface, err)
		}
	}
}

// Poll drains up to pollBatch queued updates without blocking.  Order
// within the batch matches enqueue order.
func (s *Source) Poll() []source.Update {
	var batch []source.Update
	for len(batch) < pollBatch {
		select {
		case u := <-s.updates:
			batch = append(batch, u)
		default:
			return batch
		}
	}
	return batch
}

// ExportedSignals returns the external names this source can produce.
func (s *Source) ExportedSignals() []string {
	names := make([]string, 0, len(s.exportName))
	for _, name := range s.exportName {
		names = append(names, name)
	}
	return names
}

// Stop closes the socket, which unblocks the reader, and waits for it to
// exit.  Safe to call more than once and from a signal handler.
func (s *Source) Stop() {
	s.stop.Do(func() {
		close(s.closing)
		if s.conn != nil {
			s.conn.Close()
			<-s.done
		}
	})
}
