// Package session tracks active proxy sessions and queues forced disconnects in Redis.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when the game id has no active session.
var ErrSessionNotFound = errors.New("session not found")

// Session is an active proxy connection as last reported by the proxy.
type Session struct {
	GameID      uuid.UUID `json:"gameId"`
	Username    string    `json:"username"`
	Route       string    `json:"route,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Kick is a forced disconnect waiting for the proxy to carry it out.
type Kick struct {
	GameID   uuid.UUID `json:"gameId"`
	Username string    `json:"username,omitempty"`
	Message  string    `json:"message"`
	IssuedAt time.Time `json:"issuedAt"`
}
