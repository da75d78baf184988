package signalr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordSeparator terminates every frame in the SignalR JSON hub protocol.
const recordSeparator = 0x1e

// Hub protocol message types.
const (
	typeInvocation = 1
	typeStreamItem = 2
	typeCompletion = 3
	typePing       = 6
	typeClose      = 7
)

// handshakeRequest opens the hub protocol negotiation after the websocket
// upgrade completes.
type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// handshakeResponse is the server's reply; an empty object means success.
type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// hubMessage is the minimal envelope used to dispatch on message type.
type hubMessage struct {
	Type int `json:"type"`
}

// invocationMessage carries a hub method call in either direction.
// Fire-and-forget invocations omit InvocationID.
type invocationMessage struct {
	Type         int               `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
}

// closeMessage is sent by the server before terminating the connection.
type closeMessage struct {
	Type  int    `json:"type"`
	Error string `json:"error,omitempty"`
}

// pingMessage is the keepalive frame. Both sides may send it at any time.
var pingMessage = []byte{'{', '"', 't', 'y', 'p', 'e', '"', ':', '6', '}', recordSeparator}

// encodeFrame marshals v and appends the record separator.
func encodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return append(data, recordSeparator), nil
}

// splitFrames splits a websocket message into its 0x1E-terminated frames.
// A trailing partial frame (no terminator) is discarded: the protocol
// requires every frame to be terminated within its transport message.
func splitFrames(data []byte) [][]byte {
	var frames [][]byte
	for {
		i := bytes.IndexByte(data, recordSeparator)
		if i < 0 {
			return frames
		}
		if i > 0 {
			frames = append(frames, data[:i])
		}
		data = data[i+1:]
	}
}
