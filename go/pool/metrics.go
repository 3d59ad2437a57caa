// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys from the OTel database semantic conventions.
const (
	attrKeyPoolName = "db.client.connection.pool.name"
	attrKeyState    = "db.client.connection.state"
)

// ConnState is the value of the connection-state metric attribute.
type ConnState string

const (
	// ConnStateUsed marks connections currently checked out.
	ConnStateUsed ConnState = "used"

	// ConnStateIdle marks connections sitting in the pool.
	ConnStateIdle ConnState = "idle"
)

// ConnectionCount tracks live connections by state. The zero value is a
// no-op instrument, so pools without telemetry pay nothing.
type ConnectionCount struct {
	counter metric.Int64UpDownCounter
}

// NewConnectionCount creates the db.client.connection.count instrument
// with the standard semantic-convention name and unit.
func NewConnectionCount(m metric.Meter) (ConnectionCount, error) {
	counter, err := m.Int64UpDownCounter(
		"db.client.connection.count",
		metric.WithDescription("The number of connections that are currently in state described by the state attribute."),
		metric.WithUnit("{connection}"),
	)
	return ConnectionCount{counter: counter}, err
}

// Add records a connection count change for the given pool and state.
func (c ConnectionCount) Add(ctx context.Context, delta int64, poolName string, state ConnState) {
	if c.counter == nil {
		return
	}
	c.counter.Add(ctx, delta, metric.WithAttributes(
		attribute.String(attrKeyPoolName, poolName),
		attribute.String(attrKeyState, string(state)),
	))
}
