package core

import (
	"context"
	"sync"
	"time"
)

// Timer is a pending delayed callback.
type Timer interface {
	Stop() bool
}

// Dispatcher serializes engine state changes onto one logical thread.
// Post and AfterFunc callbacks run on that thread; Go runs fn elsewhere and
// fn must hand its results back through Post.
type Dispatcher interface {
	Post(fn func())
	Go(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is a Dispatcher backed by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	workers sync.WaitGroup
}

// NewLoop returns an idle loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. Posting never blocks and never drops while the loop is
// running; callbacks posted after Run returns are discarded.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go runs fn on its own goroutine.
func (l *Loop) Go(fn func()) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		fn()
	}()
}

// AfterFunc posts fn after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Run processes callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, fn := range batch {
				fn()
			}
		}
	}
}

// Wait blocks until every goroutine started with Go has returned.
func (l *Loop) Wait() {
	l.workers.Wait()
}
