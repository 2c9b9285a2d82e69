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
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSink publishes each emission line to one topic.
type MQTTSink struct {
	Client mqtt.Client
	Topic  string
}

// NewMQTTSink connects to the broker and returns a publishing sink.
func NewMQTTSink(broker, clientID, topic string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	t := client.Connect()
	t.Wait()
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, err)
	}
	log.Printf("publishing emissions to %s topic %s", broker, topic)
	return &MQTTSink{Client: client, Topic: topic}, nil
}

func (s *MQTTSink) Emit(line string) {
	// QoS 0, no retain: emissions are a stream, not state.
	t := s.Client.Publish(s.Topic, 0, false, line)
	go func() {
		t.Wait()
		if err := t.Error(); err != nil {
			log.Printf("MQTT publish: %v", err)
		}
	}()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.Client.Disconnect(100)
}
