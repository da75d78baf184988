package chat

import (
	"errors"
	"fmt"
)

// ErrMissingContent marks an inbound event with no recognizable answer text
// under any alias. Such events are logged and dropped without touching any
// client state.
var ErrMissingContent = errors.New("chat: event has no content field")

// Alias keys probed per logical field, in priority order. The hub has
// shipped payloads in both PascalCase and camelCase; the client accepts
// either without schema negotiation.
var (
	contentAliases = []string{"answer", "Answer", "Response", "response"}
	idAliases      = []string{"AnswerId", "answerId", "ResponseId", "responseId"}
	convAliases    = []string{"ConversationId", "conversationId"}
	tsAliases      = []string{"Timestamp", "timestamp"}
)

// dedupPrefixLen bounds the content portion of fallback dedup keys.
const dedupPrefixLen = 80

// Event is the canonical form of an inbound chatbot response.
type Event struct {
	// ID is the server's answer id, empty when the payload carried none.
	ID             string
	Content        string
	ConversationID string
	Timestamp      string
}

// Normalize converts a raw hub payload into a canonical Event. It returns
// ErrMissingContent when no string-typed content field is present under any
// alias; all other fields are optional.
func Normalize(raw map[string]any) (Event, error) {
	content := firstString(raw, contentAliases)
	if content == "" {
		return Event{}, ErrMissingContent
	}

	return Event{
		ID:             firstString(raw, idAliases),
		Content:        content,
		ConversationID: firstString(raw, convAliases),
		Timestamp:      firstString(raw, tsAliases),
	}, nil
}

// DedupKey derives the at-most-once delivery key for the event. A stable
// server id wins; otherwise a composite of conversation id, timestamp, and
// a bounded content prefix stands in.
func (e Event) DedupKey() string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	prefix := e.Content
	if len(prefix) > dedupPrefixLen {
		prefix = prefix[:dedupPrefixLen]
	}
	return fmt.Sprintf("h:%s|%s|%s", e.ConversationID, e.Timestamp, prefix)
}

// firstString returns the first present, non-empty string value among the
// candidate keys. Non-string values under a candidate key are skipped.
func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
