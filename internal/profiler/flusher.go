// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package profiler

import (
	"context"
	"sync"
	"time"
)

// flusher debounces persistence: after a notify it waits until delay has
// passed without another notify, then calls save once.
type flusher struct {
	delay time.Duration
	save  func(context.Context) error

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newFlusher(delay time.Duration, save func(context.Context) error) *flusher {
	return &flusher{
		delay: delay,
		save:  save,
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (f *flusher) start() {
	f.wg.Add(1)
	go f.run()
}

// notify records that state changed. It never blocks.
func (f *flusher) notify() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// stop terminates the loop and waits for an in-flight save to finish.
func (f *flusher) stop() {
	f.once.Do(func() { close(f.done) })
	f.wg.Wait()
}

func (f *flusher) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		case <-f.kick:
		}

		if !f.quiet() {
			return
		}
		// Errors are logged by save; the dirty state is retried on the next kick or Close.
		_ = f.save(context.Background())
	}
}

// quiet waits until delay elapses with no further notify. It returns
// false if the flusher was stopped meanwhile.
func (f *flusher) quiet() bool {
	timer := time.NewTimer(f.delay)
	defer timer.Stop()

	for {
		select {
		case <-f.done:
			return false
		case <-f.kick:
			timer.Reset(f.delay)
		case <-timer.C:
			return true
		}
	}
}
