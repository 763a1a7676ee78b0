package agentctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dimas/pkg/core"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

// noReplySession always returns an already-closed, empty reply channel, so
// Context.Get's ad-hoc retry loop runs to exhaustion deterministically and
// fast, mirroring scenario S2 (querier retry) without a real transport.
type noReplySession struct{}

func (noReplySession) Zid() string            { return "fake" }
func (noReplySession) Put(string, []byte) error    { return nil }
func (noReplySession) Delete(string) error         { return nil }
func (noReplySession) Get(_ context.Context, _ string, _ transport.GetOptions) (<-chan transport.Reply, error) {
	ch := make(chan transport.Reply)
	close(ch)
	return ch, nil
}
func (noReplySession) DeclarePublisher(string, transport.PublisherOptions) (transport.Publisher, error) {
	return nil, nil
}
func (noReplySession) DeclareSubscriber(string) (transport.Subscriber, error) { return nil, nil }
func (noReplySession) DeclareQueryable(string, bool) (transport.Queryable, error) {
	return nil, nil
}
func (noReplySession) DeclareKeyexpr(string) error   { return nil }
func (noReplySession) Liveliness() transport.Liveliness { return nil }
func (noReplySession) Close() error                     { return nil }

func TestContextGetExhaustsRetriesWithoutQuerier(t *testing.T) {
	sender := make(chan core.TaskSignal, 1)
	ctx := New[struct{}]("examples", "a1", noReplySession{}, sender, struct{}{})

	start := time.Now()
	err := ctx.Get("q", nil, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	var accessErr *core.AccessingQueryableError
	assert.ErrorAs(t, err, &accessErr)
	assert.Equal(t, "examples/q", accessErr.Selector)
	assert.GreaterOrEqual(t, elapsed, (getRetries-1)*defaultGetTimeout) // retries happened, not asserting exact timing
}

func TestContextFQName(t *testing.T) {
	sender := make(chan core.TaskSignal, 1)
	ctx := New[struct{}]("examples", "a1", noReplySession{}, sender, struct{}{})
	assert.Equal(t, "examples/a1", ctx.FQName())

	ctxNoPrefix := New[struct{}]("", "a1", noReplySession{}, sender, struct{}{})
	assert.Equal(t, "a1", ctxNoPrefix.FQName())
}

func TestContextReadWrite(t *testing.T) {
	sender := make(chan core.TaskSignal, 1)
	type props struct{ Count int }
	ctx := New[props]("", "a1", noReplySession{}, sender, props{Count: 1})

	p, done := ctx.Write()
	p.Count++
	done()

	r, doneR := ctx.Read()
	defer doneR()
	assert.Equal(t, 2, r.Count)
}

func TestContextPutFallsBackToAdHocWithoutRegistries(t *testing.T) {
	sender := make(chan core.TaskSignal, 1)
	ctx := New[struct{}]("", "a1", noReplySession{}, sender, struct{}{})

	msg, err := wire.Encode("hello")
	require.NoError(t, err)
	require.NoError(t, ctx.Put("examples/hello", msg))
}
