// Package bus routes frames between a negotiation session and its two
// realtime parties, the buyer and the seller.
package bus

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Role identifies a party endpoint.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// ParseRole validates a role from a URL path segment.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(s)); r {
	case RoleBuyer, RoleSeller:
		return r, nil
	}
	return "", errors.Errorf("unknown role %q", s)
}

// Outbound frame types.
const (
	FrameConnected     = "connected"
	FrameSellerOnline  = "seller_online"
	FrameSellerOffline = "seller_offline"
	FrameMessage       = "message"
	FrameAIResponse    = "ai_response"
	FrameSessionEnded  = "session_ended"
	FrameError         = "error"
)

// Frame is one outbound unit on an endpoint.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// InboundFrame is what a party sends over its endpoint.
type InboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Presence is a party's connection status.
type Presence string

const (
	Absent       Presence = "absent"
	Connected    Presence = "connected"
	Disconnected Presence = "disconnected"
)

// EventKind classifies bus events.
type EventKind string

const (
	EventJoined  EventKind = "joined"
	EventLeft    EventKind = "left"
	EventMessage EventKind = "message"
)

// Event is published on Bus.Events for the session manager.
type Event struct {
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Kind      EventKind `json:"kind"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
