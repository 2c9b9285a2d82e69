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
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSink broadcasts each emission line to every connected WebSocket
// client.  A slow client that can't keep up is dropped rather than allowed
// to stall the pipeline.
type WSSink struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan string
}

// NewWSSink serves a WebSocket endpoint on addr and returns the
// broadcasting sink.
func NewWSSink(addr string) *WSSink {
	s := &WSSink{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("websocket endpoint on %s: %v", addr, err)
		}
	}()
	log.Printf("streaming emissions on ws://%s/", addr)
	return s
}

func (s *WSSink) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}

	lines := make(chan string, 64)
	s.mu.Lock()
	s.clients[conn] = lines
	s.mu.Unlock()

	go func() {
		defer s.drop(conn)
		for line := range lines {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}()

	// Drain (and ignore) anything the client sends; exit on close.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *WSSink) drop(conn *websocket.Conn) {
	s.mu.Lock()
	lines, have := s.clients[conn]
	if have {
		delete(s.clients, conn)
		close(lines)
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *WSSink) Emit(line string) {
	s.mu.Lock()
	for conn, lines := range s.clients {
		select {
		case lines <- line:
		default:
			// Backed up; disconnect below rather than block.
			go s.drop(conn)
		}
	}
	s.mu.Unlock()
}
