package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuchau23/fibochat-go/internal/metrics"
	"github.com/phuchau23/fibochat-go/internal/models"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type invocation struct {
	target string
	args   []any
}

// fakeTransport implements Transport in memory.
type fakeTransport struct {
	mu             sync.Mutex
	connected      bool
	startCalls     int
	handlers       map[string]func([]json.RawMessage)
	onConnected    []func(bool)
	onDisconnected []func()
	invocations    []invocation
	invokeErr      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func([]json.RawMessage))}
}

func (f *fakeTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	f.startCalls++
	f.connected = true
	callbacks := append([]func(bool){}, f.onConnected...)
	f.mu.Unlock()
	for _, cb := range callbacks {
		cb(false)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) On(target string, handler func([]json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[target] = handler
}

func (f *fakeTransport) Off(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, target)
}

func (f *fakeTransport) OnConnected(cb func(bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnected = append(f.onConnected, cb)
}

func (f *fakeTransport) OnDisconnected(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnected = append(f.onDisconnected, cb)
}

func (f *fakeTransport) Invoke(ctx context.Context, target string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invokeErr != nil {
		return f.invokeErr
	}
	f.invocations = append(f.invocations, invocation{target: target, args: args})
	return nil
}

// deliver pushes a raw event payload through the registered hub handler.
func (f *fakeTransport) deliver(t *testing.T, payload string) {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[eventChatbotResponse]
	f.mu.Unlock()
	require.NotNil(t, handler, "no handler registered for %s", eventChatbotResponse)
	handler([]json.RawMessage{json.RawMessage(payload)})
}

// drop simulates a transport-level connection loss and recovery.
func (f *fakeTransport) drop(reconnect bool) {
	f.mu.Lock()
	f.connected = false
	disconnected := append([]func(){}, f.onDisconnected...)
	f.mu.Unlock()
	for _, cb := range disconnected {
		cb()
	}
	if !reconnect {
		return
	}
	f.mu.Lock()
	f.connected = true
	connected := append([]func(bool){}, f.onConnected...)
	f.mu.Unlock()
	for _, cb := range connected {
		cb(true)
	}
}

func (f *fakeTransport) calls(target string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invocation
	for _, inv := range f.invocations {
		if inv.target == target {
			out = append(out, inv)
		}
	}
	return out
}

func newTestClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := New(ft, Config{UserID: "u1", Logger: testLogger(), Stats: metrics.NewCollector()})
	require.NoError(t, c.Start(context.Background()))
	return c, ft
}

const eventA = `{"AnswerId":"a1","Response":"Hello","ConversationId":"c1","Timestamp":"2024-01-01T00:00:00Z"}`

func TestInboundEventAppendsAssistantMessage(t *testing.T) {
	c, ft := newTestClient(t)

	ft.deliver(t, eventA)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "a1", msgs[0].ID)
	assert.Equal(t, "c1", msgs[0].ConversationID)
	assert.Equal(t, "c1", c.ConversationID())
}

func TestDuplicateEventDiscarded(t *testing.T) {
	c, ft := newTestClient(t)

	ft.deliver(t, eventA)
	ft.deliver(t, eventA)

	require.Len(t, c.Messages(), 1)
	assert.Equal(t, int64(1), c.Stats().DuplicatesDropped)
	assert.Equal(t, int64(1), c.Stats().EventsReceived)
}

func TestDuplicatesSurviveReconnect(t *testing.T) {
	// A replay after the transport reconnects must still be recognized.
	c, ft := newTestClient(t)

	ft.deliver(t, eventA)
	ft.drop(true)
	ft.deliver(t, eventA)

	require.Len(t, c.Messages(), 1)
}

func TestOptimisticEchoOrdering(t *testing.T) {
	c, ft := newTestClient(t)

	c.AppendUserMessage("Hi")
	ft.deliver(t, eventA)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Empty(t, msgs[0].ConversationID, "no conversation established at echo time")
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestClearMessages(t *testing.T) {
	c, ft := newTestClient(t)

	ft.deliver(t, eventA)
	require.NotEmpty(t, c.Messages())

	c.ClearMessages()

	assert.Empty(t, c.Messages())
	assert.Empty(t, c.ConversationID())
	assert.Equal(t, models.StatusConnected, c.Status(), "clearing must not touch the connection")

	// The dedup set outlives the transcript: a replayed event stays dropped.
	ft.deliver(t, eventA)
	assert.Empty(t, c.Messages())
}

func TestConversationStickiness(t *testing.T) {
	c, ft := newTestClient(t)

	ft.deliver(t, eventA)
	require.Equal(t, "c1", c.ConversationID())

	ft.deliver(t, `{"AnswerId":"a2","Response":"More"}`)

	assert.Equal(t, "c1", c.ConversationID())
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "c1", msgs[1].ConversationID, "sticky conversation stamped onto the message")
}

func TestMalformedEventDropped(t *testing.T) {
	c, ft := newTestClient(t)

	ft.deliver(t, eventA)
	ft.deliver(t, `{"ConversationId":"c9","Timestamp":"2024-01-02T00:00:00Z"}`)

	assert.Len(t, c.Messages(), 1)
	assert.Equal(t, "c1", c.ConversationID(), "malformed event must not move the conversation")
	assert.Equal(t, int64(1), c.Stats().MalformedDropped)
}

func TestUnparseablePayloadDropped(t *testing.T) {
	c, ft := newTestClient(t)

	ft.deliver(t, `not json`)
	ft.mu.Lock()
	handler := ft.handlers[eventChatbotResponse]
	ft.mu.Unlock()
	handler(nil) // no arguments at all

	assert.Empty(t, c.Messages())
	assert.Equal(t, int64(2), c.Stats().MalformedDropped)
}

func TestAskWhileDisconnectedIsNoop(t *testing.T) {
	c, ft := newTestClient(t)
	ft.drop(false)

	err := c.Ask(context.Background(), "hello?", "")

	assert.NoError(t, err)
	assert.Empty(t, ft.calls(methodAsk))
}

func TestAskSubstitutesSentinel(t *testing.T) {
	c, ft := newTestClient(t)

	require.NoError(t, c.Ask(context.Background(), "new topic", ""))
	require.NoError(t, c.Ask(context.Background(), "spaces too", "   "))

	calls := ft.calls(methodAsk)
	require.Len(t, calls, 2)
	for _, call := range calls {
		require.Len(t, call.args, 3)
		assert.Equal(t, NewConversationID, call.args[1])
		assert.Equal(t, "u1", call.args[2])
	}
}

func TestAskExplicitConversation(t *testing.T) {
	c, ft := newTestClient(t)

	require.NoError(t, c.Ask(context.Background(), "follow up", "c42"))

	calls := ft.calls(methodAsk)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"follow up", "c42", "u1"}, calls[0].args)
}

func TestAskInvocationFailureReturned(t *testing.T) {
	c, ft := newTestClient(t)
	ft.mu.Lock()
	ft.invokeErr = errors.New("pipe broke")
	ft.mu.Unlock()

	err := c.Ask(context.Background(), "q", "")

	assert.Error(t, err)
	assert.Equal(t, int64(0), c.Stats().AsksSent)
}

func TestJoinGroupOncePerGroup(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	c.SetGroup(ctx, "g1")
	c.SetGroup(ctx, "g1")

	calls := ft.calls(methodJoinGroup)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"g1"}, calls[0].args)
}

func TestGroupChangeJoinsWithoutLeaving(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	c.SetGroup(ctx, "g1")
	c.SetGroup(ctx, "g2")

	calls := ft.calls(methodJoinGroup)
	require.Len(t, calls, 2)
	assert.Equal(t, []any{"g2"}, calls[1].args)
	// join-only membership: no leave invocation of any kind
	for _, inv := range ft.invocations {
		assert.Equal(t, methodJoinGroup, inv.target)
	}
}

func TestRejoinAfterReconnect(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	c.SetGroup(ctx, "g1")
	ft.drop(true)

	calls := ft.calls(methodJoinGroup)
	require.Len(t, calls, 2, "group membership does not survive a reconnect")
	assert.Equal(t, int64(1), c.Stats().Reconnects)
	assert.Equal(t, models.StatusConnected, c.Status())
}

func TestStartIsGuarded(t *testing.T) {
	c, ft := newTestClient(t)

	require.NoError(t, c.Start(context.Background()))

	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Equal(t, 1, ft.startCalls, "re-entrant setup must not open a second connection")
}

func TestCloseDetachesHandlerFirst(t *testing.T) {
	c, ft := newTestClient(t)

	require.NoError(t, c.Close())

	ft.mu.Lock()
	_, registered := ft.handlers[eventChatbotResponse]
	ft.mu.Unlock()
	assert.False(t, registered)
	assert.False(t, ft.Connected())
	assert.NoError(t, c.Close(), "second close is a no-op")
}

func TestUpdatesChannelCarriesMessages(t *testing.T) {
	c, ft := newTestClient(t)

	// Drain the initial status notification.
	<-c.Updates()

	ft.deliver(t, eventA)

	u := <-c.Updates()
	require.Equal(t, UpdateMessage, u.Kind)
	require.NotNil(t, u.Message)
	assert.Equal(t, "Hello", u.Message.Content)
}
