// Package notify fans notification events out to live Server-Sent-Events
// connections and persists a Notification row for each addressee.
package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the JSON payload pushed to clients.
type Event struct {
	Type      string         `json:"type"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Frame encodes ev as an SSE data frame.
func (ev Event) Frame() ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return DataFrame(b), nil
}

// DataFrame wraps a JSON document as "data: <json>\n\n".
func DataFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	return append(out, '\n', '\n')
}

// HeartbeatFrame is an SSE comment; clients ignore it.
var HeartbeatFrame = []byte(": ping\n\n")

// Selector addresses connections. Set fields must all match; an empty
// Selector matches every connection.
type Selector struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	Office string `json:"office,omitempty"`
}

// Matches reports whether c is addressed by s.
func (s Selector) Matches(c *Conn) bool {
	if s.UserID != "" && s.UserID != c.UserID {
		return false
	}
	if s.Role != "" && s.Role != c.Role {
		return false
	}
	if s.Office != "" && s.Office != c.Office {
		return false
	}
	return true
}

// Target is a union of selectors.
type Target []Selector

// Matches reports whether any selector addresses c.
func (t Target) Matches(c *Conn) bool {
	for _, s := range t {
		if s.Matches(c) {
			return true
		}
	}
	return false
}

// All addresses every connection.
func All() Target { return Target{{}} }

// Users addresses the given users.
func Users(ids ...string) Target {
	t := make(Target, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t = append(t, Selector{UserID: id})
	}
	return t
}

// Roles addresses every user holding one of roles.
func Roles(roles ...string) Target {
	t := make(Target, 0, len(roles))
	for _, r := range roles {
		t = append(t, Selector{Role: r})
	}
	return t
}

// Office addresses users of office; with roles, only those roles.
func Office(office string, roles ...string) Target {
	if len(roles) == 0 {
		return Target{{Office: office}}
	}
	t := make(Target, 0, len(roles))
	for _, r := range roles {
		t = append(t, Selector{Role: r, Office: office})
	}
	return t
}

// Envelope is what travels through a Broker.
type Envelope struct {
	Target Target          `json:"target"`
	Event  json.RawMessage `json:"event"`
}
