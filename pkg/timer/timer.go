// Package timer implements the two periodic-callback endpoint kinds (C8):
// a plain interval, firing immediately and then every period, and a
// delayed interval, which waits once before the same periodic firing.
package timer

import (
	"sync"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/logx"
)

// Callback is invoked on every tick. Errors are logged, not propagated; a
// panic unwinds the timer's task and requests a restart.
type Callback func() error

// Timer is a periodic task started when its activation threshold is
// reached and stopped when it is left (C8).
type Timer struct {
	core.BaseOperational

	selector string
	delay    time.Duration // zero for a plain interval
	interval time.Duration
	callback Callback
	sender   chan<- core.TaskSignal

	mu   sync.Mutex // guards done, serializes Start/Stop
	done chan struct{}

	cbMu sync.Mutex // serializes callback invocation
}

// NewInterval constructs a Timer that fires immediately and then every
// period.
func NewInterval(selector string, period time.Duration, cb Callback, sender chan<- core.TaskSignal, activation core.OperationState) *Timer {
	return newTimer(selector, 0, period, cb, sender, activation)
}

// NewDelayedInterval constructs a Timer that waits delay, fires once, and
// then continues firing every period.
func NewDelayedInterval(selector string, delay, period time.Duration, cb Callback, sender chan<- core.TaskSignal, activation core.OperationState) *Timer {
	return newTimer(selector, delay, period, cb, sender, activation)
}

func newTimer(selector string, delay, period time.Duration, cb Callback, sender chan<- core.TaskSignal, activation core.OperationState) *Timer {
	return &Timer{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        selector,
		delay:           delay,
		interval:        period,
		callback:        cb,
		sender:          sender,
	}
}

func (t *Timer) Selector() string { return t.selector }

// Start is idempotent: an already-running timer is stopped and restarted.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.done = make(chan struct{})
	go t.run(t.done)
	return nil
}

func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return nil
}

func (t *Timer) stopLocked() {
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}

func (t *Timer) run(done chan struct{}) {
	defer t.restartOnPanic()

	if t.delay > 0 {
		select {
		case <-done:
			return
		case <-time.After(t.delay):
		}
	}

	t.invoke()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.invoke()
		}
	}
}

func (t *Timer) invoke() {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	if t.callback == nil {
		return
	}
	if err := t.callback(); err != nil {
		logx.Debugf("timer %s: callback error: %s", t.selector, err)
	}
}

// restartOnPanic is the timer task's panic hook, mirroring pkg/com's
// subscriber/queryable restart pattern.
func (t *Timer) restartOnPanic() {
	if r := recover(); r != nil {
		logx.Debugf("timer %s: panic, requesting restart: %v", t.selector, r)
		if t.sender != nil {
			t.sender <- core.TaskSignal{Kind: core.RestartTimer, Selector: t.selector}
		}
	}
}

func (t *Timer) Configure() error    { return core.HookStart(&t.BaseOperational, core.StateConfigured, t) }
func (t *Timer) Commission() error   { return core.HookStart(&t.BaseOperational, core.StateInactive, t) }
func (t *Timer) Wakeup() error       { return core.HookStart(&t.BaseOperational, core.StateStandby, t) }
func (t *Timer) Activate() error     { return core.HookStart(&t.BaseOperational, core.StateActive, t) }
func (t *Timer) Deactivate() error   { return core.HookStop(&t.BaseOperational, core.StateActive, t) }
func (t *Timer) Suspend() error      { return core.HookStop(&t.BaseOperational, core.StateStandby, t) }
func (t *Timer) Decommission() error { return core.HookStop(&t.BaseOperational, core.StateInactive, t) }
func (t *Timer) Deconfigure() error  { return core.HookStop(&t.BaseOperational, core.StateConfigured, t) }
