// Package event defines the JSON envelopes pushed to connected viewers.
package event

import (
	"encoding/json"
	"time"
)

// Type tags an envelope.
type Type string

const (
	TypeMessage         Type = "message"          // per-viewer locale message
	TypeMarketRefreshed Type = "market_refreshed" // broadcast after a rotation
	TypeView            Type = "view"             // what the viewer's open market shows
	TypeStatus          Type = "status"           // sent once on connect
)

// Envelope is one frame on the notification stream.
type Envelope struct {
	Type         Type              `json:"type"`
	Key          string            `json:"key,omitempty"`
	Text         string            `json:"text,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	Payload      any               `json:"payload,omitempty"`
	At           time.Time         `json:"at"`
}

// NewMessage wraps a rendered locale message.
func NewMessage(key, text string, placeholders map[string]string, at time.Time) *Envelope {
	ev := AcquireEnvelope()
	ev.Type = TypeMessage
	ev.Key = key
	ev.Text = text
	ev.Placeholders = placeholders
	ev.At = at
	return ev
}

// NewPayload wraps a structured payload of type t.
func NewPayload(t Type, payload any, at time.Time) *Envelope {
	ev := AcquireEnvelope()
	ev.Type = t
	ev.Payload = payload
	ev.At = at
	return ev
}

// Encode marshals the envelope and returns it to the pool.
func Encode(ev *Envelope) ([]byte, error) {
	defer ReleaseEnvelope(ev)
	return json.Marshal(ev)
}

// Decode parses one frame. Payload decodes as generic JSON.
func Decode(data []byte) (Envelope, error) {
	var ev Envelope
	err := json.Unmarshal(data, &ev)
	return ev, err
}
