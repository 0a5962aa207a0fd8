// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import "sync"

// EventName identifies one of the observable, consumer-facing events listed in spec §6.
type EventName string

const (
	EventNodeTracked   EventName = "node:tracked"
	EventNodeNotified  EventName = "node:notified"
	EventNodesChanged  EventName = "nodes:changed"
	EventNodesNotified EventName = "nodes:notified"
	EventPhasesReinit  EventName = "phases:reinit"
)

// AppEvent is delivered to listeners registered via App.On.
type AppEvent struct {
	Name EventName
	Data any
}

// EventListener receives AppEvents. It must not block; listeners run synchronously on the
// emitting goroutine, consistent with the single-threaded cooperative model of spec §5.
type EventListener func(AppEvent)

type emitter struct {
	mu        sync.Mutex
	listeners map[EventName][]EventListener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventName][]EventListener)}
}

func (e *emitter) on(name EventName, l EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], l)
}

func (e *emitter) emit(name EventName, data any) {
	e.mu.Lock()
	ls := e.listeners[name]
	e.mu.Unlock()
	for _, l := range ls {
		l(AppEvent{Name: name, Data: data})
	}
}
