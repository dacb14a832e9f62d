// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package device

import (
	"fmt"
	"sync"
)

// Completion status of an enqueued command
type Event struct {
	done chan struct{}
	err  error
}

func newEvent() *Event { return &Event{done: make(chan struct{})} }

func (e *Event) complete(err error) {
	e.err = err
	close(e.done)
}

// Blocks until the command has completed, and returns its error
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

type command struct {
	name     string
	run      func() error
	event    *Event
	blocking bool // the caller receives the error from the event
}

// An in-order command queue. Commands execute asynchronously to the host on one worker goroutine,
// in the order they were enqueued
type Queue struct {
	ctx      *Context
	commands chan command
	stopped  chan struct{}

	mu       sync.RWMutex
	released bool
	errMu    sync.Mutex
	err      error // first error of a non-blocking command since last Finish
}

// Creates a command queue and starts its worker
func (c *Context) CreateQueue() *Queue {
	q := &Queue{
		ctx:      c,
		commands: make(chan command, 64),
		stopped:  make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer close(q.stopped)
	for cmd := range q.commands {
		err := cmd.run()
		if err != nil {
			err = fmt.Errorf("%s: %w", cmd.name, err)
		}
		if err != nil && !cmd.blocking {
			q.errMu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.errMu.Unlock()
		}
		cmd.event.complete(err)
	}
}

// Appends a command to the queue. Blocks only if the queue is full
func (q *Queue) enqueue(name string, blocking bool, run func() error) (*Event, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.released {
		return nil, fmt.Errorf("%s: queue %w", name, ErrReleased)
	}
	ev := newEvent()
	q.commands <- command{name: name, run: run, event: ev, blocking: blocking}
	return ev, nil
}

// Enqueues a command and optionally waits for its completion
func (q *Queue) submit(name string, blocking bool, run func() error) error {
	ev, err := q.enqueue(name, blocking, run)
	if err != nil {
		return err
	}
	if blocking {
		return ev.Wait()
	}
	return nil
}

// Blocks until all previously enqueued commands have completed. Returns the first error of a
// non-blocking command since the last call to Finish, if any. Blocking commands report their
// errors to their caller only
func (q *Queue) Finish() error {
	ev, err := q.enqueue("finish", true, func() error { return nil })
	if err != nil {
		return err
	}
	ev.Wait()
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err, q.err = q.err, nil
	return err
}

// Drains the queue and stops its worker. Further enqueues fail
func (q *Queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return fmt.Errorf("queue %w", ErrReleased)
	}
	q.released = true
	close(q.commands)
	q.mu.Unlock()
	<-q.stopped
	return nil
}

// Copies host data into the buffer starting at the given element offset. A non-blocking write
// reads from host after the call returns, so host must not be modified until the command completes
func (q *Queue) EnqueueWriteBuffer(buf *Buffer, blocking bool, offset int, host []float32) error {
	if err := checkFlat(buf, offset, len(host)); err != nil {
		return err
	}
	return q.submit("write buffer", blocking, func() error {
		if buf.data == nil {
			return fmt.Errorf("buffer %w", ErrReleased)
		}
		copy(buf.data[offset:], host)
		return nil
	})
}

// Copies buffer data starting at the given element offset into host
func (q *Queue) EnqueueReadBuffer(buf *Buffer, blocking bool, offset int, host []float32) error {
	if err := checkFlat(buf, offset, len(host)); err != nil {
		return err
	}
	return q.submit("read buffer", blocking, func() error {
		if buf.data == nil {
			return fmt.Errorf("buffer %w", ErrReleased)
		}
		copy(host, buf.data[offset:offset+len(host)])
		return nil
	})
}

// Copies a rectangular region of host into the buffer
func (q *Queue) EnqueueWriteRect(buf *Buffer, blocking bool, r Rect, host []float32) error {
	if err := r.check(buf, len(host)); err != nil {
		return err
	}
	return q.submit("write rect", blocking, func() error {
		if buf.data == nil {
			return fmt.Errorf("buffer %w", ErrReleased)
		}
		r.copyRows(buf.data, host, true)
		return nil
	})
}

// Copies a rectangular region of the buffer into host
func (q *Queue) EnqueueReadRect(buf *Buffer, blocking bool, r Rect, host []float32) error {
	if err := r.check(buf, len(host)); err != nil {
		return err
	}
	return q.submit("read rect", blocking, func() error {
		if buf.data == nil {
			return fmt.Errorf("buffer %w", ErrReleased)
		}
		r.copyRows(buf.data, host, false)
		return nil
	})
}

func checkFlat(buf *Buffer, offset, n int) error {
	if buf == nil || buf.data == nil {
		return fmt.Errorf("%w: no buffer", ErrTransferMismatch)
	}
	if offset < 0 || n <= 0 || offset+n > len(buf.data) {
		return fmt.Errorf("%w: %d floats at offset %d, buffer holds %d", ErrTransferMismatch, n, offset, len(buf.data))
	}
	return nil
}
