// Package chat implements the realtime chatbot client: one hub connection,
// normalized inbound events, deduplicated message history, group membership,
// and a fire-and-forget ask operation.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phuchau23/fibochat-go/internal/metrics"
	"github.com/phuchau23/fibochat-go/internal/models"
)

// Hub contract: one inbound event for all chatbot responses, two outbound
// methods.
const (
	eventChatbotResponse = "ReceiveChatbotResponse"
	methodJoinGroup      = "JoinGroup"
	methodAsk            = "AskQuestion"
)

// NewConversationID is the reserved all-zero conversation id signaling
// "start a new conversation" to the server.
var NewConversationID = uuid.Nil.String()

// Transport is the hub connection the client drives. *signalr.Connection
// satisfies it; tests substitute a fake.
type Transport interface {
	Start(ctx context.Context) error
	Close() error
	Connected() bool
	On(target string, handler func(args []json.RawMessage))
	Off(target string)
	OnConnected(f func(reconnected bool))
	OnDisconnected(f func())
	Invoke(ctx context.Context, target string, args ...any) error
}

// UpdateKind discriminates client update notifications.
type UpdateKind int

const (
	// UpdateMessage signals a message appended to the transcript.
	UpdateMessage UpdateKind = iota
	// UpdateStatus signals a connection status change.
	UpdateStatus
	// UpdateCleared signals the transcript was reset.
	UpdateCleared
)

// Update is a notification pushed to the Updates channel for reactive
// consumers (the TUI). Message is set for UpdateMessage only.
type Update struct {
	Kind    UpdateKind
	Message *models.ChatMessage
	Status  models.ConnectionStatus
}

// Config holds client construction parameters.
type Config struct {
	// UserID identifies the asking user on the hub.
	UserID string
	Logger *slog.Logger
	Stats  *metrics.Collector
}

// Client owns one hub connection and the in-memory session state derived
// from it. All state lives for the client's lifetime only; Close tears the
// connection down after detaching the inbound handler.
type Client struct {
	transport Transport
	userID    string
	log       *slog.Logger
	stats     *metrics.Collector

	mu             sync.Mutex
	status         models.ConnectionStatus
	groupID        string
	joinedGroup    string // group joined on the current connection epoch
	conversationID string
	seen           map[string]struct{}
	messages       []models.ChatMessage
	started        bool
	closed         bool
	everConnected  bool

	updates chan Update
}

// New creates a client over the given transport. Start must be called to
// connect.
func New(transport Transport, cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	stats := cfg.Stats
	if stats == nil {
		stats = metrics.NewCollector()
	}

	return &Client{
		transport: transport,
		userID:    cfg.UserID,
		log:       log,
		stats:     stats,
		status:    models.StatusDisconnected,
		seen:      make(map[string]struct{}),
		updates:   make(chan Update, 64),
	}
}

// Start registers the inbound handler and connection callbacks, then opens
// the connection. Guarded: a second Start is a no-op so re-entrant setup
// never opens a duplicate connection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("chat: client closed")
	}
	if c.started {
		c.mu.Unlock()
		c.log.Debug("start ignored, client already started")
		return nil
	}
	c.started = true
	c.status = models.StatusConnecting
	c.mu.Unlock()

	c.transport.On(eventChatbotResponse, c.handleEvent)
	c.transport.OnConnected(c.handleConnected)
	c.transport.OnDisconnected(c.handleDisconnected)

	if err := c.transport.Start(ctx); err != nil {
		c.mu.Lock()
		c.started = false
		c.status = models.StatusDisconnected
		c.mu.Unlock()
		c.log.Error("hub connection failed", "error", err)
		return fmt.Errorf("start hub connection: %w", err)
	}
	return nil
}

// Close detaches the inbound handler first, then stops the connection, so
// no event is handled on a closing connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.status = models.StatusDisconnected
	c.mu.Unlock()

	c.transport.Off(eventChatbotResponse)
	return c.transport.Close()
}

// SetGroup records the group to receive chatbot responses for and joins it
// if connected. Group changes issue a join for the new value only; the
// previous group is never left, matching the server's join-only contract.
func (c *Client) SetGroup(ctx context.Context, groupID string) {
	c.mu.Lock()
	c.groupID = groupID
	connected := c.status == models.StatusConnected
	needJoin := connected && groupID != "" && c.joinedGroup != groupID
	c.mu.Unlock()

	if needJoin {
		c.joinGroup(ctx, groupID)
	}
}

// Ask sends a prompt to the chatbot. The reply arrives later as an inbound
// event, not as a return value. While disconnected the call is a logged
// no-op; an invocation failure on a live connection is returned to the
// caller but never retried.
func (c *Client) Ask(ctx context.Context, prompt, conversationID string) error {
	if !c.transport.Connected() {
		c.log.Warn("ask dropped, hub not connected", "prompt_len", len(prompt))
		return nil
	}

	convID := strings.TrimSpace(conversationID)
	if convID == "" {
		convID = NewConversationID
	}

	if err := c.transport.Invoke(ctx, methodAsk, prompt, convID, c.userID); err != nil {
		c.log.Error("ask invocation failed", "error", err)
		return fmt.Errorf("ask: %w", err)
	}
	c.stats.Inc(metrics.OpAskSent)
	return nil
}

// AppendUserMessage appends an optimistic local echo of the user's prompt,
// stamped with the current conversation id (possibly empty) and wall-clock
// time. It is never deduplicated against server events.
func (c *Client) AppendUserMessage(content string) models.ChatMessage {
	c.mu.Lock()
	msg := models.ChatMessage{
		Role:           models.RoleUser,
		Content:        content,
		ConversationID: c.conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.notify(Update{Kind: UpdateMessage, Message: &msg})
	return msg
}

// ClearMessages empties the transcript and forgets the active conversation.
// Connection state, group membership, and the dedup set are untouched.
func (c *Client) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	c.conversationID = ""
	c.mu.Unlock()

	c.notify(Update{Kind: UpdateCleared})
}

// Messages returns a copy of the transcript in append order.
func (c *Client) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// ConversationID returns the active conversation id, empty until the first
// server event establishes one.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Status returns the current connection status.
func (c *Client) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Updates exposes the client's notification stream. The channel is buffered
// and never closed; slow consumers lose notifications, not messages.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() metrics.Snapshot {
	return c.stats.Snapshot()
}

// handleEvent normalizes, dedupes, and appends one inbound hub event.
// Runs on the transport's read goroutine, preserving push order.
func (c *Client) handleEvent(args []json.RawMessage) {
	if len(args) == 0 {
		c.log.Warn("chatbot event with no payload")
		c.stats.Inc(metrics.OpMalformedDropped)
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(args[0], &raw); err != nil {
		c.log.Warn("unparseable chatbot event", "error", err)
		c.stats.Inc(metrics.OpMalformedDropped)
		return
	}

	ev, err := Normalize(raw)
	if err != nil {
		c.log.Warn("dropping malformed chatbot event", "error", err)
		c.stats.Inc(metrics.OpMalformedDropped)
		return
	}
	c.stats.Inc(metrics.OpEventReceived)

	key := ev.DedupKey()

	c.mu.Lock()
	if _, dup := c.seen[key]; dup {
		c.mu.Unlock()
		c.log.Debug("duplicate chatbot event discarded", "key", key)
		c.stats.Inc(metrics.OpDuplicateDropped)
		return
	}
	c.seen[key] = struct{}{}

	// The server is the source of truth for conversation identity:
	// last-write-wins, sticky across events that omit it.
	if ev.ConversationID != "" {
		c.conversationID = ev.ConversationID
	}

	ts := ev.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	msg := models.ChatMessage{
		ID:             ev.ID,
		Role:           models.RoleAssistant,
		Content:        ev.Content,
		ConversationID: c.conversationID,
		Timestamp:      ts,
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.notify(Update{Kind: UpdateMessage, Message: &msg})
}

// handleConnected runs on every successful (re)connect. Group membership
// does not survive a transport reconnect, so the join is reissued per
// connection epoch.
func (c *Client) handleConnected(reconnected bool) {
	c.mu.Lock()
	c.status = models.StatusConnected
	c.joinedGroup = ""
	groupID := c.groupID
	if c.everConnected {
		c.stats.Inc(metrics.OpReconnect)
	}
	c.everConnected = true
	c.mu.Unlock()

	if reconnected {
		c.log.Info("hub connection restored")
	} else {
		c.log.Info("hub connected")
	}

	c.notify(Update{Kind: UpdateStatus, Status: models.StatusConnected})

	if groupID != "" {
		c.joinGroup(context.Background(), groupID)
	}
}

func (c *Client) handleDisconnected() {
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.status = models.StatusConnecting // transport retries on its own
	}
	c.mu.Unlock()

	if closed {
		return
	}
	c.log.Warn("hub connection lost, reconnecting")
	c.notify(Update{Kind: UpdateStatus, Status: models.StatusConnecting})
}

// joinGroup issues the join invocation once per (connection, group) pair.
// Failures are logged, not surfaced: a missed join manifests as a silent
// response gap the same way the source client behaves.
func (c *Client) joinGroup(ctx context.Context, groupID string) {
	if err := c.transport.Invoke(ctx, methodJoinGroup, groupID); err != nil {
		c.log.Error("join group failed", "group", groupID, "error", err)
		return
	}

	c.mu.Lock()
	c.joinedGroup = groupID
	c.mu.Unlock()

	c.stats.Inc(metrics.OpGroupJoin)
	c.log.Info("joined chatbot group", "group", groupID)
}

// notify pushes an update without blocking; a full buffer drops the
// notification only, never the underlying message.
func (c *Client) notify(u Update) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.updates <- u:
	default:
		c.log.Debug("update channel full, notification dropped")
	}
}
