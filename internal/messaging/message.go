package messaging

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/frame"
)

var (
	ErrUnknownCommand = errors.New("unknown message command")
	ErrUnknownWindow  = errors.New("unknown window")
)

// Command names a synchronization message
type Command string

const (
	CmdSyncCookieStart Command = "sync-cookie-start"
	CmdSyncCookieDone  Command = "sync-cookie-done"
)

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	return c == CmdSyncCookieStart || c == CmdSyncCookieDone
}

// Message is the payload exchanged between windows. ID is nil for the
// fire-and-forget START a frame sends to its top window.
type Message struct {
	ID      *int                  `json:"id,omitempty"`
	Cmd     Command               `json:"cmd"`
	Cookies []cookie.ParsedCookie `json:"cookies"`
}

// Clone returns a deep copy, as structured cloning does for posted messages
func (m Message) Clone() Message {
	out := Message{Cmd: m.Cmd, Cookies: cookie.Clone(m.Cookies)}
	if m.ID != nil {
		v := *m.ID
		out.ID = &v
	}
	return out
}

// IDValue returns the id, or 0 when absent
func (m Message) IDValue() int {
	if m.ID == nil {
		return 0
	}
	return *m.ID
}

// Handler receives a message together with the window that sent it
type Handler func(msg Message, source *frame.Window)

// Channel is the messaging capability of one window. Send is fire-and-forget
// and may silently fail to deliver.
type Channel interface {
	Send(msg Message, target *frame.Window)
	Subscribe(h Handler) (cancel func())
}

// Packet frames a message for transports that cross a process boundary
type Packet struct {
	Source  string  `json:"source,omitempty"`
	Target  string  `json:"target,omitempty"`
	Message Message `json:"message"`
}

// EncodePacket serializes a packet for the wire
func EncodePacket(p Packet) ([]byte, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	return data, nil
}

// DecodePacket parses a packet and validates its command
func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	if err := sonic.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("failed to decode packet: %w", err)
	}
	if !p.Message.Cmd.Valid() {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownCommand, p.Message.Cmd)
	}
	return p, nil
}
