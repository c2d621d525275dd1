package command

import (
	"context"
	"strings"

	"github.com/sentinelgg/sentinel/internal/link"
)

// Finder resolves link records from either side of the binding.
type Finder interface {
	FindByCommID(ctx context.Context, commID string) (*link.Record, error)
	FindByUsername(ctx context.Context, username string) (*link.Record, error)
}

// minSnowflakeLen keeps short all-digit game usernames from being read as Discord ids.
const minSnowflakeLen = 15

// parseUserRef extracts a Discord id from a mention ("<@123>", "<@!123>") or a
// bare snowflake. ok is false when input looks like a game username instead.
func parseUserRef(input string) (id string, ok bool) {
	input = strings.TrimSpace(input)
	isMention := strings.HasPrefix(input, "<@") && strings.HasSuffix(input, ">")
	if isMention {
		input = strings.TrimPrefix(strings.TrimSuffix(input[2:], ">"), "!")
	}
	if input == "" || len(input) > 20 || (!isMention && len(input) < minSnowflakeLen) {
		return "", false
	}
	for _, c := range input {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return input, true
}

// resolveTarget finds the link record named by input, trying the Discord id
// first and the game username otherwise.
func resolveTarget(ctx context.Context, finder Finder, input string) (*link.Record, error) {
	if id, ok := parseUserRef(input); ok {
		return finder.FindByCommID(ctx, id)
	}
	return finder.FindByUsername(ctx, strings.TrimSpace(input))
}

func mention(commID string) string {
	return "<@" + commID + ">"
}
