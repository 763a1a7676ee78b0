package observation

import (
	"context"
	"sync"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

const (
	observerRetries        = 5
	defaultObserverTimeout = 200 * time.Millisecond
)

// ObserverControlCallback is invoked with the decoded control response to
// each request/cancel round trip.
type ObserverControlCallback func(wire.ControlResponseKind) error

// ObserverResponseCallback is invoked with each decoded feedback-topic
// message delivered during an accepted observation.
type ObserverResponseCallback func(wire.ObservableResponse) error

// Observer is the client side of the observation protocol (C9). Request and
// cancel are synchronous at the transport layer; an accepted request spawns
// an asynchronous feedback-subscription task.
type Observer struct {
	core.BaseOperational

	selector string
	session  transport.Session
	timeout  time.Duration
	control  ObserverControlCallback
	response ObserverResponseCallback

	mu           sync.Mutex
	activeCancel context.CancelFunc
}

// ObserverOptions configures an Observer's callbacks and per-call timeout.
type ObserverOptions struct {
	Timeout  time.Duration
	Control  ObserverControlCallback
	Response ObserverResponseCallback
}

func NewObserver(selector string, session transport.Session, opts ObserverOptions, activation core.OperationState) *Observer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultObserverTimeout
	}
	return &Observer{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        selector,
		session:         session,
		timeout:         timeout,
		control:         opts.Control,
		response:        opts.Response,
	}
}

func (o *Observer) Selector() string { return o.selector }

func (o *Observer) Start() error { return o.session.DeclareKeyexpr(o.selector) }

// Stop cancels any running observation before tearing down, mirroring the
// original's "de-init also triggers cancel".
func (o *Observer) Stop() error {
	o.stopActive()
	return o.Cancel()
}

// Request starts an observation. msg may be empty.
func (o *Observer) Request(msg wire.Message) error {
	return o.roundTrip(core.RequestSelector(o.selector), msg.Bytes(), o.handleRequestReply)
}

// Cancel cancels a running observation. Canceling while Idle is a no-op
// that still replies Canceled.
func (o *Observer) Cancel() error {
	return o.roundTrip(core.CancelSelector(o.selector), nil, o.handleCancelReply)
}

func (o *Observer) roundTrip(selector string, payload []byte, handle func(transport.Reply)) error {
	for attempt := 0; attempt < observerRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		replies, err := o.session.Get(ctx, selector, transport.GetOptions{
			Payload:       payload,
			Timeout:       o.timeout,
			Target:        transport.TargetAll,
			Consolidation: transport.ConsolidationNone,
		})
		if err != nil {
			cancel()
			return &core.QueryCreationError{Source: err}
		}

		received := false
		for reply := range replies {
			received = true
			handle(reply)
		}
		cancel()
		if received {
			return nil
		}
		time.Sleep(o.timeout)
	}
	return &core.AccessingObservableError{Selector: o.selector}
}

func (o *Observer) handleRequestReply(reply transport.Reply) {
	resp, err := wire.Decode[wire.ControlResponse](wire.Message(reply.Sample.Payload))
	if err != nil {
		logx.Debugf("observer %s: decoding control response: %s", o.selector, err)
		return
	}

	if resp.Kind == wire.ControlAccepted {
		source := reply.ReplierID
		if source == "" {
			source = "*"
		}
		o.spawnObservation(core.FeedbackSelector(o.selector, source))
	}

	o.invokeControl(resp.Kind)
}

func (o *Observer) handleCancelReply(reply transport.Reply) {
	resp, err := wire.Decode[wire.ControlResponse](wire.Message(reply.Sample.Payload))
	if err != nil {
		logx.Debugf("observer %s: decoding cancel response: %s", o.selector, err)
		return
	}
	if resp.Kind != wire.ControlCanceled {
		logx.Debugf("observer %s: unexpected response on cancelation: %s", o.selector, resp.Kind)
		return
	}
	o.invokeControl(resp.Kind)
}

func (o *Observer) invokeControl(kind wire.ControlResponseKind) {
	if o.control == nil {
		return
	}
	go func() {
		if err := o.control(kind); err != nil {
			logx.Debugf("observer %s: control callback error: %s", o.selector, err)
		}
	}()
}

func (o *Observer) spawnObservation(selector string) {
	ctx, cancel := context.WithCancel(context.Background())
	o.stopActive()
	o.mu.Lock()
	o.activeCancel = cancel
	o.mu.Unlock()
	go o.runObservation(ctx, selector)
}

func (o *Observer) stopActive() {
	o.mu.Lock()
	cancel := o.activeCancel
	o.activeCancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runObservation subscribes to the feedback selector and delivers every
// Feedback message until a terminal Finished or Canceled arrives, then
// tears itself down. A panic here is only logged: the observation set has
// no dedicated restart signal, unlike the declared endpoint kinds.
func (o *Observer) runObservation(ctx context.Context, selector string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Debugf("observation %s: panic: %v", selector, r)
		}
	}()

	sub, err := o.session.DeclareSubscriber(selector)
	if err != nil {
		logx.Debugf("observation %s: declaring subscriber: %s", selector, err)
		return
	}
	defer sub.Undeclare()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub.Samples():
			if !ok {
				return
			}
			if sample.Kind == transport.SampleDelete {
				logx.Debugf("observation %s: unexpected delete sample", selector)
				continue
			}
			resp, err := wire.Decode[wire.ObservableResponse](wire.Message(sample.Payload))
			if err != nil {
				logx.Debugf("observation %s: decoding response: %s", selector, err)
				continue
			}
			o.invokeResponse(resp)
			if resp.Kind != wire.ResponseFeedback {
				return
			}
		}
	}
}

func (o *Observer) invokeResponse(resp wire.ObservableResponse) {
	if o.response == nil {
		return
	}
	go func() {
		if err := o.response(resp); err != nil {
			logx.Debugf("observer %s: response callback error: %s", o.selector, err)
		}
	}()
}

func (o *Observer) Configure() error  { return core.HookStart(&o.BaseOperational, core.StateConfigured, o) }
func (o *Observer) Commission() error { return core.HookStart(&o.BaseOperational, core.StateInactive, o) }
func (o *Observer) Wakeup() error     { return core.HookStart(&o.BaseOperational, core.StateStandby, o) }
func (o *Observer) Activate() error   { return core.HookStart(&o.BaseOperational, core.StateActive, o) }
func (o *Observer) Deactivate() error { return core.HookStop(&o.BaseOperational, core.StateActive, o) }
func (o *Observer) Suspend() error    { return core.HookStop(&o.BaseOperational, core.StateStandby, o) }
func (o *Observer) Decommission() error {
	return core.HookStop(&o.BaseOperational, core.StateInactive, o)
}
func (o *Observer) Deconfigure() error {
	return core.HookStop(&o.BaseOperational, core.StateConfigured, o)
}
