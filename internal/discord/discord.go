// Package discord adapts a discordgo session to Sentinel's roster and command surfaces.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ConnectivityStatus represents the result of a gateway connectivity check.
type ConnectivityStatus struct {
	Connected bool
	Guilds    int
	Latency   time.Duration
}

// HealthChecker provides Discord connectivity checking.
type HealthChecker interface {
	CheckConnectivity(ctx context.Context) ConnectivityStatus
}

// NewSession creates a bot session with the intents Sentinel needs. It does not connect.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	s.StateEnabled = true
	return s, nil
}
