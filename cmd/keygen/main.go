// Command keygen prints a new bridge key and the bcrypt hash to configure as BRIDGE_KEY_HASH.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentinelgg/sentinel/internal/auth"
)

type keygenConfig struct {
	BcryptCost int `envconfig:"BCRYPT_COST" default:"12"`
}

func main() {
	var cfg keygenConfig
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		slog.Error("invalid BCRYPT_COST", "cost", cfg.BcryptCost, "min", bcrypt.MinCost, "max", bcrypt.MaxCost)
		os.Exit(1)
	}

	rawKey, hash, err := auth.GenerateKey(cfg.BcryptCost)
	if err != nil {
		slog.Error("failed to generate bridge key", "error", err)
		os.Exit(1)
	}

	fmt.Printf("BRIDGE_KEY=%s\n", rawKey)
	fmt.Printf("BRIDGE_KEY_HASH=%s\n", hash)
}
