package link

import (
	"time"

	"github.com/google/uuid"
)

// Record represents a row in the linked_accounts table: the one-to-one binding
// between a game identity and a Discord account.
type Record struct {
	GameID   uuid.UUID
	CommID   string
	Username *string // last name seen at login; nil until the first successful login
}

// PendingCode represents a row in the pending_links table.
type PendingCode struct {
	GameID    uuid.UUID
	Code      string
	CreatedAt time.Time
}
