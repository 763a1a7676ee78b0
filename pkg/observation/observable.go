// Package observation implements the three-phase request/feedback/result
// observation protocol (C9): Observable is the server side (a single
// queryable dispatching request/cancel by parameter, a feedback publisher,
// and a periodic feedback timer), Observer is the client side (request/
// cancel via transport get, with a feedback-subscription task spawned on
// acceptance).
package observation

import (
	"context"
	"time"

	"dimas/pkg/com"
	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/timer"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

const (
	requestParam = "request"
	cancelParam  = "cancel"

	defaultFeedbackInterval = time.Second
)

// ControlCallback decides whether to accept an observation request. Only
// ControlAccepted and ControlDeclined are valid return values.
type ControlCallback func(wire.Message) (wire.ControlResponseKind, error)

// FeedbackCallback builds one feedback (or cancellation) payload.
type FeedbackCallback func() (wire.Message, error)

// ExecutionFunction runs the observed operation to completion, returning
// its result payload. It must observe ctx and return promptly after it is
// canceled; Go has no way to force-kill a running goroutine, so a canceled
// execution's eventual result is simply discarded.
type ExecutionFunction func(ctx context.Context) (wire.Message, error)

type execResult struct {
	generation uint64
	msg        wire.Message
	err        error
}

// Observable is the server side of the observation protocol (C9). It is
// Idle until an accepted request makes it Busy, running at most one
// execution at a time.
type Observable struct {
	core.BaseOperational

	selector         string
	session          transport.Session
	feedbackInterval time.Duration
	control          ControlCallback
	feedback         FeedbackCallback
	execute          ExecutionFunction
	sender           chan<- core.TaskSignal

	// touched only by the run loop goroutine.
	busy          bool
	generation    uint64
	cancelExec    context.CancelFunc
	publisher     *com.Publisher
	feedbackTimer *timer.Timer
	resultCh      chan execResult

	handle transport.Queryable
	done   chan struct{}
}

// ObservableOptions configures an Observable's callbacks and timing.
type ObservableOptions struct {
	FeedbackInterval time.Duration
	Control          ControlCallback
	Feedback         FeedbackCallback
	Execute          ExecutionFunction
}

func NewObservable(selector string, session transport.Session, opts ObservableOptions, sender chan<- core.TaskSignal, activation core.OperationState) *Observable {
	interval := opts.FeedbackInterval
	if interval <= 0 {
		interval = defaultFeedbackInterval
	}
	return &Observable{
		BaseOperational:  core.NewBaseOperational(activation),
		selector:         selector,
		session:          session,
		feedbackInterval: interval,
		control:          opts.Control,
		feedback:         opts.Feedback,
		execute:          opts.Execute,
		sender:           sender,
	}
}

func (o *Observable) Selector() string { return o.selector }

func (o *Observable) Start() error {
	if err := o.stopHandle(); err != nil {
		return err
	}
	h, err := o.session.DeclareQueryable(o.selector, true)
	if err != nil {
		return &core.SubscriberCreationError{Source: err}
	}
	o.handle = h
	o.resultCh = make(chan execResult, 1)
	o.done = make(chan struct{})
	go o.run(h, o.done)
	return nil
}

func (o *Observable) Stop() error { return o.stopHandle() }

func (o *Observable) stopHandle() error {
	if o.handle == nil {
		return nil
	}
	err := o.handle.Undeclare()
	o.handle = nil
	if o.done != nil {
		close(o.done)
		o.done = nil
	}
	return err
}

func (o *Observable) run(h transport.Queryable, done chan struct{}) {
	defer o.restartOnPanic()
	for {
		select {
		case <-done:
			o.abandonBusy()
			return
		case q, ok := <-h.Queries():
			if !ok {
				o.abandonBusy()
				return
			}
			o.dispatch(q)
		case res := <-o.resultCh:
			o.finishExecution(res)
		}
	}
}

func (o *Observable) dispatch(q transport.Query) {
	switch q.Parameters() {
	case requestParam:
		o.handleRequest(q)
	case cancelParam:
		o.handleCancel(q)
	default:
		logx.Debugf("observable %s: unknown query parameter %q", o.selector, q.Parameters())
	}
}

func (o *Observable) handleRequest(q transport.Query) {
	if o.busy {
		o.replyControl(q, wire.ControlOccupied)
		return
	}

	payload, _ := q.Payload()
	decision, err := o.invokeControl(wire.Message(payload))
	if err != nil {
		logx.Debugf("observable %s: control callback error: %s", o.selector, err)
		return
	}

	switch decision {
	case wire.ControlDeclined:
		o.replyControl(q, wire.ControlDeclined)
	case wire.ControlAccepted:
		o.replyControl(q, wire.ControlAccepted)
		o.beginExecution()
	default:
		logx.Debugf("observable %s: control callback returned invalid decision %s", o.selector, decision)
	}
}

func (o *Observable) invokeControl(msg wire.Message) (wire.ControlResponseKind, error) {
	if o.control == nil {
		return wire.ControlDeclined, nil
	}
	return o.control(msg)
}

func (o *Observable) handleCancel(q transport.Query) {
	if !o.busy {
		o.replyControl(q, wire.ControlCanceled)
		return
	}

	if o.cancelExec != nil {
		o.cancelExec()
	}

	var payload wire.Message
	if o.feedback != nil {
		msg, err := o.feedback()
		if err != nil {
			logx.Debugf("observable %s: feedback callback error during cancel: %s", o.selector, err)
		} else {
			payload = msg
		}
	}

	pub := o.publisher
	if pub != nil {
		if err := o.publish(pub, wire.ResponseCanceled, payload); err != nil {
			logx.Debugf("observable %s: publishing Canceled: %s", o.selector, err)
		}
	}
	o.teardownBusy()
	o.replyControl(q, wire.ControlCanceled)
}

func (o *Observable) beginExecution() {
	o.busy = true
	o.generation++
	gen := o.generation

	pubSelector := core.FeedbackSelector(o.selector, o.session.Zid())
	pub := com.NewPublisher(pubSelector, o.session, transport.PublisherOptions{
		Priority:          transport.PriorityRealTime,
		CongestionControl: transport.CongestionBlock,
	}, core.StateActive)
	if err := core.ManageOperationState(pub, core.StateActive); err != nil {
		logx.Debugf("observable %s: declaring feedback publisher: %s", o.selector, err)
		o.busy = false
		return
	}
	o.publisher = pub

	o.feedbackTimer = timer.NewInterval(o.selector+"/feedback-timer", o.feedbackInterval, func() error {
		if o.feedback == nil {
			return nil
		}
		msg, err := o.feedback()
		if err != nil {
			return err
		}
		return o.publish(pub, wire.ResponseFeedback, msg)
	}, o.sender, core.StateActive)
	if err := core.ManageOperationState(o.feedbackTimer, core.StateActive); err != nil {
		logx.Debugf("observable %s: starting feedback timer: %s", o.selector, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancelExec = cancel

	go func() {
		var msg wire.Message
		var err error
		if o.execute != nil {
			msg, err = o.execute(ctx)
		}
		o.resultCh <- execResult{generation: gen, msg: msg, err: err}
	}()
}

func (o *Observable) finishExecution(res execResult) {
	if !o.busy || res.generation != o.generation {
		return // stale: superseded by a cancel
	}
	if res.err != nil {
		logx.Debugf("observable %s: execution error: %s", o.selector, res.err)
	}
	pub := o.publisher
	if pub != nil {
		if err := o.publish(pub, wire.ResponseFinished, res.msg); err != nil {
			logx.Debugf("observable %s: publishing Finished: %s", o.selector, err)
		}
	}
	o.teardownBusy()
}

// teardownBusy drops the feedback publisher and timer and returns to Idle.
// Bumping generation invalidates any execResult still in flight on a
// canceled generation.
func (o *Observable) teardownBusy() {
	if o.feedbackTimer != nil {
		_ = core.ManageOperationState(o.feedbackTimer, core.StateCreated)
		o.feedbackTimer = nil
	}
	if o.publisher != nil {
		_ = core.ManageOperationState(o.publisher, core.StateCreated)
		o.publisher = nil
	}
	o.cancelExec = nil
	o.busy = false
	o.generation++
}

// abandonBusy tears down any in-flight execution when the Observable itself
// is stopped, without publishing a terminal message.
func (o *Observable) abandonBusy() {
	if !o.busy {
		return
	}
	if o.cancelExec != nil {
		o.cancelExec()
	}
	o.teardownBusy()
}

func (o *Observable) publish(pub *com.Publisher, kind wire.ObservableResponseKind, payload wire.Message) error {
	msg, err := wire.Encode(wire.ObservableResponse{Kind: kind, Payload: payload})
	if err != nil {
		return &core.DecodingError{Source: err}
	}
	return pub.Put(msg)
}

func (o *Observable) replyControl(q transport.Query, kind wire.ControlResponseKind) {
	msg, err := wire.Encode(wire.ControlResponse{Kind: kind})
	if err != nil {
		logx.Debugf("observable %s: encoding control response: %s", o.selector, err)
		return
	}
	if err := q.Reply(q.KeyExpr(), msg.Bytes()); err != nil {
		logx.Debugf("observable %s: replying: %s", o.selector, &core.ReplyError{Source: err})
	}
}

// restartOnPanic is the observable task's panic hook.
func (o *Observable) restartOnPanic() {
	if r := recover(); r != nil {
		logx.Debugf("observable %s: panic, requesting restart: %v", o.selector, r)
		if o.sender != nil {
			o.sender <- core.TaskSignal{Kind: core.RestartObservable, Selector: o.selector}
		}
	}
}

func (o *Observable) Configure() error  { return core.HookStart(&o.BaseOperational, core.StateConfigured, o) }
func (o *Observable) Commission() error { return core.HookStart(&o.BaseOperational, core.StateInactive, o) }
func (o *Observable) Wakeup() error     { return core.HookStart(&o.BaseOperational, core.StateStandby, o) }
func (o *Observable) Activate() error   { return core.HookStart(&o.BaseOperational, core.StateActive, o) }
func (o *Observable) Deactivate() error { return core.HookStop(&o.BaseOperational, core.StateActive, o) }
func (o *Observable) Suspend() error    { return core.HookStop(&o.BaseOperational, core.StateStandby, o) }
func (o *Observable) Decommission() error {
	return core.HookStop(&o.BaseOperational, core.StateInactive, o)
}
func (o *Observable) Deconfigure() error {
	return core.HookStop(&o.BaseOperational, core.StateConfigured, o)
}
