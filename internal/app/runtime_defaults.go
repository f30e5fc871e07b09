package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/motorlist/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	internalTokenBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	// The scheduler calls the batch endpoints in-process, so a random token
	// is enough when no external caller has been configured.
	if strings.TrimSpace(cfg.Scheduler.InternalToken) == "" {
		token, err := crypto.GenerateToken(internalTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("generate scheduler internal token: %w", err)
		}
		cfg.Scheduler.InternalToken = token
		generated["scheduler.internal_token"] = true
	}

	return generated, nil
}
