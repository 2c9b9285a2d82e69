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

// Package source defines what a signal source looks like to the evaluator.
package source

import (
	"context"
	"time"

	"github.com/Comcast/vssdag/vals"
)

// Update is one decoded signal reading, named by its external signal name.
type Update struct {
	Signal    string
	Value     vals.Value
	Quality   vals.Quality
	Timestamp time.Time
}

// Source feeds signal updates into the evaluator loop.
//
// Poll must be non-blocking and must preserve enqueue order within the
// returned batch.  Stop must be idempotent.
type Source interface {
	Init(ctx context.Context) error
	Poll() []Update
	ExportedSignals() []string
	Stop()
}
