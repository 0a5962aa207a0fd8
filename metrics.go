// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"sync"
	"time"
)

// metrics tracks the rolling-per-second surface described in spec §6: updates-per-second,
// events-per-second, nodes-processed-per-second. Counters accumulate over a one-second window
// and are folded into the published rate whenever that window elapses.
type metrics struct {
	mu          sync.Mutex
	windowStart time.Time

	updates        int64
	events         int64
	nodesProcessed int64

	lastUPS, lastEPS, lastNPS float64
}

func newMetrics() *metrics {
	return &metrics{windowStart: time.Now()}
}

func (m *metrics) roll() {
	now := time.Now()
	elapsed := now.Sub(m.windowStart)
	if elapsed < time.Second {
		return
	}
	secs := elapsed.Seconds()
	m.lastUPS = float64(m.updates) / secs
	m.lastEPS = float64(m.events) / secs
	m.lastNPS = float64(m.nodesProcessed) / secs
	m.updates, m.events, m.nodesProcessed = 0, 0, 0
	m.windowStart = now
}

func (m *metrics) recordUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.roll()
}

func (m *metrics) recordEvents(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events += int64(n)
	m.roll()
}

func (m *metrics) recordNodesProcessed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesProcessed += int64(n)
	m.roll()
}

// snapshot returns the most recently rolled updates/events/nodes-processed per-second rates.
func (m *metrics) snapshot() (ups, eps, nps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUPS, m.lastEPS, m.lastNPS
}
