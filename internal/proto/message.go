// Package proto defines the JSON frame envelopes carried over the
// WebSocket transport.
package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client. Data is left
// raw so a malformed body can be rejected per-event instead of killing the
// connection.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	InboundLogin   = "login"
	InboundTalk    = "talk"
	InboundCommand = "command"
	InboundResume  = "resume"

	OutboundHello = "hello"
)

// LoginData requests the AwaitingLogin -> Active transition. Both fields
// are optional: an empty room means the public pool, an empty name falls
// back to the room default.
type LoginData struct {
	Room string `json:"room,omitempty"`
	Name string `json:"name,omitempty"`
}

// TalkData is a chat line from the client.
type TalkData struct {
	Text string `json:"text"`
}

// CommandData is a command invocation: name first, then positional args.
type CommandData struct {
	List []string `json:"list"`
}

// ResumeData asks to reattach a dropped session by its guid. Only honored
// before login.
type ResumeData struct {
	GUID string `json:"guid"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// HelloData opens every connection: the session guid doubles as the resume
// token, and the reconnect block is advisory retry guidance for the client.
type HelloData struct {
	GUID      string        `json:"guid"`
	Reconnect ReconnectData `json:"reconnect"`
}

// ReconnectData mirrors the server's reconnect settings.
type ReconnectData struct {
	Enabled     bool  `json:"enabled"`
	MaxAttempts int   `json:"maxAttempts"`
	TimeoutMS   int64 `json:"timeout"`
}
