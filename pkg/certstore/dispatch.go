// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import "sync"

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}

// InlineDispatcher runs callbacks on the goroutine that produced them.
var InlineDispatcher Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// SerialDispatcher runs callbacks one at a time, in submission order, on a
// background goroutine. The goroutine exits when the queue drains.
type SerialDispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewSerialDispatcher returns an idle SerialDispatcher.
func NewSerialDispatcher() *SerialDispatcher {
	return &SerialDispatcher{}
}

// Dispatch queues fn and starts the drain goroutine if it is not running.
func (d *SerialDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *SerialDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}
