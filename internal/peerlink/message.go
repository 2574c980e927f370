package peerlink

import (
	"encoding/json"

	"github.com/frank2889/peerbridge/internal/geometry"
)

// Message types (spec.md §4.2). The wire format is newline-delimited
// JSON; every line is one Message with a required "type" and an
// optional "payload".
const (
	TypeHello          = "hello"
	TypeConnected      = "connected"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeDisconnect     = "disconnect"
	TypeModeSwitch     = "mode_switch"
	TypeMouseMove      = "mouse_move"
	TypeMouseButton    = "mouse_button"
	TypeMouseScroll    = "mouse_scroll"
	TypeKey            = "key"
	TypeClipboardSync  = "clipboard_sync"
	TypeScreenInfo     = "screen_info"
)

// Message is one newline-delimited JSON frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload and wraps it in a Message of the given
// type. It panics only if payload cannot be marshalled, which for the
// fixed payload structs below never happens.
func NewMessage(typ string, payload any) Message {
	if payload == nil {
		return Message{Type: typ}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	return Message{Type: typ, Payload: raw}
}

// Decode unmarshals the message's payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// HelloPayload is carried by "hello".
type HelloPayload struct {
	Version  int               `json:"version"`
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Platform string            `json:"platform"`
	Screens  []geometry.Screen `json:"screens"`
}

// ModeSwitchPayload is carried by "mode_switch".
type ModeSwitchPayload struct {
	Active bool   `json:"active"`
	Screen int    `json:"screen,omitempty"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Edge   string `json:"edge,omitempty"`
}

// MouseMovePayload is carried by "mouse_move".
type MouseMovePayload struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	Absolute bool `json:"absolute"`
}

// MouseButtonPayload is carried by "mouse_button".
type MouseButtonPayload struct {
	Button string `json:"button"` // "left" | "right" | "middle"
	Action string `json:"action"` // "down" | "up"
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// MouseScrollPayload is carried by "mouse_scroll". Deltas are integer
// "notches" scaled by 120; positive Y means scroll up.
type MouseScrollPayload struct {
	DeltaX int `json:"deltaX"`
	DeltaY int `json:"deltaY"`
}

// KeyPayload is carried by "key". KeyCode is in the neutral key space
// (internal/keymap).
type KeyPayload struct {
	KeyCode   int      `json:"keyCode"`
	Action    string   `json:"action"` // "down" | "up"
	Modifiers []string `json:"modifiers,omitempty"`
}

// ClipboardSyncPayload is carried by "clipboard_sync". Only
// content_type "text" is implemented; other types are reserved.
type ClipboardSyncPayload struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// ScreenInfoPayload is carried by "screen_info", sent when the local
// display configuration changes after the initial hello.
type ScreenInfoPayload struct {
	Screens []geometry.Screen `json:"screens"`
}
