package nats

import (
	natsgo "github.com/nats-io/nats.go"

	"dimas/pkg/core"
	"dimas/pkg/transport"
)

// queryable listens on the exact base subject plus a ">" wildcard catching
// any parameterised sub-action (e.g. the observation "request"/"cancel"
// selectors), both under one queue group named after the selector so that
// multiple queryable instances load-balance the way a completeness-hinted
// zenoh queryable does.
type queryable struct {
	ch        chan transport.Query
	subExact  *natsgo.Subscription
	subWild   *natsgo.Subscription
	base      string
	selector  string
	complete  bool
	sessionID string
}

func newQueryable(nc *natsgo.Conn, selector string, complete bool, sessionZid string) (*queryable, error) {
	base := toSubject(selector)
	ch := make(chan transport.Query, 32)
	group := "dimas-" + base

	q := &queryable{ch: ch, base: base, selector: selector, complete: complete, sessionID: sessionZid}

	handler := func(m *natsgo.Msg) {
		ch <- &query{nc: nc, msg: m, base: selector, params: subjectParams(base, m.Subject), zid: sessionZid}
	}

	subExact, err := nc.QueueSubscribe(base, group, handler)
	if err != nil {
		close(ch)
		return nil, &core.QueryCreationError{Source: err}
	}
	subWild, err := nc.QueueSubscribe(base+".>", group, handler)
	if err != nil {
		_ = subExact.Unsubscribe()
		close(ch)
		return nil, &core.QueryCreationError{Source: err}
	}

	q.subExact = subExact
	q.subWild = subWild
	return q, nil
}

func (q *queryable) Queries() <-chan transport.Query { return q.ch }

func (q *queryable) Undeclare() error {
	_ = q.subExact.Unsubscribe()
	_ = q.subWild.Unsubscribe()
	close(q.ch)
	return nil
}

// query is the transport.Query implementation backing one queryable callback
// invocation.
type query struct {
	nc     *natsgo.Conn
	msg    *natsgo.Msg
	base   string // the registered selector, without parameters
	params string
	zid    string
}

func (q *query) Parameters() string { return q.params }

func (q *query) Payload() ([]byte, bool) {
	if len(q.msg.Data) == 0 {
		return nil, false
	}
	return q.msg.Data, true
}

func (q *query) KeyExpr() string { return q.base }

func (q *query) Reply(_ string, payload []byte) error {
	if q.msg.Reply == "" {
		return nil
	}
	reply := natsgo.NewMsg(q.msg.Reply)
	reply.Data = payload
	reply.Header.Set(replierIDHeader, q.zid)
	if err := q.nc.PublishMsg(reply); err != nil {
		return &core.ReplyError{Source: err}
	}
	return nil
}
