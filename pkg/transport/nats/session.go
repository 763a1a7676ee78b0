package nats

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"dimas/pkg/core"
	"dimas/pkg/transport"
)

// Session is the NATS-backed implementation of transport.Session.
type Session struct {
	nc   *natsgo.Conn
	js   jetstream.JetStream
	kv   jetstream.KeyValue
	zid  string
	live *liveliness
}

// Config configures how a Session dials its NATS connection.
type Config struct {
	URL            string
	Name           string
	LivelinessKV   string // JetStream KV bucket name, default "dimas-liveliness"
	ConnectTimeout time.Duration
}

// Open dials a new NATS connection and binds the JetStream KeyValue bucket
// used for liveliness tokens, creating it if it does not already exist.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.URL == "" {
		cfg.URL = natsgo.DefaultURL
	}
	if cfg.LivelinessKV == "" {
		cfg.LivelinessKV = "dimas-liveliness"
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nc, err := natsgo.Connect(cfg.URL, natsgo.Name(cfg.Name), natsgo.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("dimas/transport/nats: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("dimas/transport/nats: jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cfg.LivelinessKV,
		TTL:    0,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("dimas/transport/nats: liveliness bucket: %w", err)
	}

	s := &Session{nc: nc, js: js, kv: kv, zid: nc.ConnectedServerId()}
	s.live = &liveliness{kv: kv}
	return s, nil
}

func (s *Session) Zid() string { return s.zid }

func (s *Session) Put(selector string, payload []byte) error {
	if err := s.nc.Publish(toSubject(selector), payload); err != nil {
		return &core.PublishingPutError{Source: err}
	}
	return nil
}

func (s *Session) Delete(selector string) error {
	if err := s.nc.Publish(deleteSubject(selector), nil); err != nil {
		return &core.PublishingDeleteError{Source: err}
	}
	return nil
}

// Get issues a request on selector and gathers replies on an ephemeral inbox
// until opts.Timeout elapses, ctx is canceled, or (for TargetFirst) the
// first reply arrives. This is the nats.go scatter/gather idiom: a plain
// subscription on a fresh inbox plus a publish carrying that inbox as the
// reply-to subject, rather than a single nc.Request (which only ever
// collects one reply).
func (s *Session) Get(ctx context.Context, selector string, opts transport.GetOptions) (<-chan transport.Reply, error) {
	inbox := natsgo.NewInbox()
	sub, err := s.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, &core.QueryCreationError{Source: err}
	}

	msg := &natsgo.Msg{Subject: toSubject(selector), Reply: inbox, Data: opts.Payload}
	if err := s.nc.PublishMsg(msg); err != nil {
		_ = sub.Unsubscribe()
		return nil, &core.QueryCreationError{Source: err}
	}

	out := make(chan transport.Reply, 8)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 500 * time.Millisecond
		}
		deadline := time.Now().Add(timeout)
		waitCtx, cancelWait := context.WithDeadline(ctx, deadline)
		defer cancelWait()

		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return
			}
			m, err := sub.NextMsgWithContext(waitCtx)
			if err != nil {
				return
			}
			out <- transport.Reply{
				Sample: transport.Sample{
					Kind:    SamplePutKind(m),
					KeyExpr: selector,
					Payload: m.Data,
				},
				ReplierID: m.Header.Get(replierIDHeader),
			}
			if opts.Target == transport.TargetFirst {
				return
			}
		}
	}()

	return out, nil
}

func (s *Session) DeclarePublisher(selector string, opts transport.PublisherOptions) (transport.Publisher, error) {
	subject := toSubject(selector)
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	return &publisher{nc: s.nc, subject: subject, selector: selector, opts: opts}, nil
}

func (s *Session) DeclareSubscriber(selector string) (transport.Subscriber, error) {
	return newSubscriber(s.nc, selector)
}

func (s *Session) DeclareQueryable(selector string, complete bool) (transport.Queryable, error) {
	return newQueryable(s.nc, selector, complete, s.zid)
}

func (s *Session) DeclareKeyexpr(selector string) error {
	return validateSubject(toSubject(selector))
}

func (s *Session) Liveliness() transport.Liveliness { return s.live }

func (s *Session) Close() error {
	s.nc.Close()
	return nil
}

// SamplePutKind is exported for the subscriber/get paths to share the same
// "is this the delete sentinel" check.
func SamplePutKind(m *natsgo.Msg) transport.SampleKind {
	if isDeleteSubject(m.Subject) {
		return transport.SampleDelete
	}
	return transport.SamplePut
}

func isDeleteSubject(subject string) bool {
	suffix := "." + deleteToken
	return len(subject) > len(suffix) && subject[len(subject)-len(suffix):] == suffix
}

func validateSubject(subject string) error {
	for _, r := range subject {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return &core.InvalidSelectorError{Which: subject}
		}
	}
	if subject == "" {
		return &core.InvalidSelectorError{Which: subject}
	}
	return nil
}

const replierIDHeader = "Dimas-Replier-Id"
