package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("invalid chain config")

// ValidationError names the first required field of a chain config that is
// empty or malformed.
type ValidationError struct {
	Chain  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	chain := e.Chain
	if strings.TrimSpace(chain) == "" {
		chain = "<unnamed>"
	}
	return fmt.Sprintf("chain config %q: %s %s", chain, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks the required fields in a fixed order and returns the first
// failure only.
func Validate(cfg ChainConfig) error {
	required := []struct {
		field string
		value string
	}{
		{"configName", cfg.ConfigName},
		{"chainId", cfg.ChainID},
		{"addressPrefix", cfg.AddressPrefix},
		{"rpcEndpoint", cfg.RPCEndpoint},
		{"defaultGasPrice", cfg.DefaultGasPrice},
		{"chainDenom", cfg.ChainDenom},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Chain: cfg.ConfigName, Field: r.field, Reason: "is empty"}
		}
		if r.field == "rpcEndpoint" {
			if err := checkURL(r.value); err != nil {
				return &ValidationError{Chain: cfg.ConfigName, Field: r.field, Reason: err.Error()}
			}
		}
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("is not a valid URL: %q", raw)
	}
	return nil
}
