package nats

import (
	natsgo "github.com/nats-io/nats.go"

	"dimas/pkg/core"
	"dimas/pkg/transport"
)

// subscriber merges the plain-put subscription and the delete-sentinel
// subscription for one selector into a single ordered channel.
type subscriber struct {
	ch       chan transport.Sample
	subPut   *natsgo.Subscription
	subDel   *natsgo.Subscription
	selector string
}

func newSubscriber(nc *natsgo.Conn, selector string) (*subscriber, error) {
	ch := make(chan transport.Sample, 64)
	subject := toSubject(selector)

	subPut, err := nc.Subscribe(subject, func(m *natsgo.Msg) {
		ch <- transport.Sample{Kind: transport.SamplePut, KeyExpr: selector, Payload: m.Data}
	})
	if err != nil {
		close(ch)
		return nil, &core.SubscriberCreationError{Source: err}
	}

	subDel, err := nc.Subscribe(subject+"."+deleteToken, func(_ *natsgo.Msg) {
		ch <- transport.Sample{Kind: transport.SampleDelete, KeyExpr: selector}
	})
	if err != nil {
		_ = subPut.Unsubscribe()
		close(ch)
		return nil, &core.SubscriberCreationError{Source: err}
	}

	return &subscriber{ch: ch, subPut: subPut, subDel: subDel, selector: selector}, nil
}

func (s *subscriber) Samples() <-chan transport.Sample { return s.ch }

func (s *subscriber) Undeclare() error {
	_ = s.subPut.Unsubscribe()
	_ = s.subDel.Unsubscribe()
	close(s.ch)
	return nil
}
