package nats

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"dimas/pkg/core"
	"dimas/pkg/transport"
)

// liveliness backs transport.Liveliness with a JetStream KeyValue bucket:
// Put/Delete model token announce/drop, and Watch models the liveliness
// change subscriber. This is the closest ecosystem analogue to zenoh's
// liveliness tokens available in nats.go.
type liveliness struct {
	kv jetstream.KeyValue
}

func (l *liveliness) DeclareToken(name string) (transport.LivelinessToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := toKVKey(name)
	if _, err := l.kv.Put(ctx, key, []byte{}); err != nil {
		return nil, &core.PublishingPutError{Source: err}
	}
	return &token{kv: l.kv, key: key}, nil
}

func (l *liveliness) DeclareSubscriber(pattern string) (transport.LivelinessSubscriber, error) {
	ctx := context.Background()
	watcher, err := l.kv.Watch(ctx, toKVKey(pattern), jetstream.UpdatesOnly())
	if err != nil {
		return nil, &core.SubscriberCreationError{Source: err}
	}

	ch := make(chan transport.Sample, 32)
	go func() {
		defer close(ch)
		for entry := range watcher.Updates() {
			if entry == nil {
				// nil marks "caught up to current state"; not a sample.
				continue
			}
			kind := transport.SamplePut
			if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
				kind = transport.SampleDelete
			}
			ch <- transport.Sample{
				Kind:    kind,
				KeyExpr: strings.ReplaceAll(entry.Key(), ".", "/"),
			}
		}
	}()

	return &livelinessSubscriber{ch: ch, watcher: watcher}, nil
}

func (l *liveliness) Get(ctx context.Context, pattern string, timeout time.Duration) ([]string, error) {
	getCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lister, err := l.kv.ListKeysFiltered(getCtx, toKVKey(pattern))
	if err != nil {
		return nil, &core.QueryCreationError{Source: err}
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, strings.ReplaceAll(key, ".", "/"))
	}
	return keys, nil
}

type token struct {
	kv  jetstream.KeyValue
	key string
}

func (t *token) Undeclare() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.kv.Delete(ctx, t.key); err != nil {
		return &core.PublishingDeleteError{Source: err}
	}
	return nil
}

type livelinessSubscriber struct {
	ch      chan transport.Sample
	watcher jetstream.KeyWatcher
}

func (s *livelinessSubscriber) Samples() <-chan transport.Sample { return s.ch }

func (s *livelinessSubscriber) Undeclare() error {
	return s.watcher.Stop()
}
