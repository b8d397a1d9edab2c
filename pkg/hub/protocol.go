package hub

import (
	"encoding/json"
)

// Server-pushed event names.
const (
	EventNowPlayingUpdate   = "NowPlayingUpdate"
	EventReceiveMessage     = "ReceiveMessage"
	EventInfo               = "Info"
	EventViewerCountUpdated = "ViewerCountUpdated"
)

// Remote methods invokable on the hub.
const (
	MethodSendMessage = "SendMessage"
)

type frameType string

const (
	// frameEvent is a server-to-client named event with a payload.
	frameEvent frameType = "event"
	// frameInvoke is a client-to-server method call.
	frameInvoke frameType = "invoke"
	// frameCompletion is the server's answer to an invoke, matched by ID.
	frameCompletion frameType = "completion"
)

// frame is the wire envelope shared by events and invocations.
type frame struct {
	Type   frameType         `json:"type"`
	ID     string            `json:"id,omitempty"`
	Target string            `json:"target,omitempty"`
	Error  string            `json:"error,omitempty"`
	Data   json.RawMessage   `json:"data,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

// completion is what an in-flight invocation resolves to.
type completion struct {
	err string
}
