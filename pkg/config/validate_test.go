package config

import (
	"errors"
	"testing"
)

func TestValidate_WellFormed(t *testing.T) {
	if err := Validate(testChain("Juno")); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
}

func TestValidate_SingleFieldEmpty(t *testing.T) {
	t.Parallel()
	fields := []struct {
		field string
		clear func(*ChainConfig)
	}{
		{"configName", func(c *ChainConfig) { c.ConfigName = "" }},
		{"chainId", func(c *ChainConfig) { c.ChainID = " " }},
		{"addressPrefix", func(c *ChainConfig) { c.AddressPrefix = "" }},
		{"rpcEndpoint", func(c *ChainConfig) { c.RPCEndpoint = "\t" }},
		{"defaultGasPrice", func(c *ChainConfig) { c.DefaultGasPrice = "" }},
		{"chainDenom", func(c *ChainConfig) { c.ChainDenom = "   " }},
	}

	for _, tt := range fields {
		tt := tt
		t.Run(tt.field, func(t *testing.T) {
			t.Parallel()
			cfg := testChain("Juno")
			tt.clear(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Expected error for empty %s", tt.field)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, vErr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected errors.Is(err, ErrValidation)")
			}
		})
	}
}

func TestValidate_FirstFailureWins(t *testing.T) {
	cfg := testChain("Juno")
	cfg.ChainDenom = ""
	cfg.AddressPrefix = ""
	err := Validate(cfg)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "addressPrefix" {
		t.Fatalf("Expected addressPrefix to be reported first, got %v", err)
	}
}

func TestValidate_BadURL(t *testing.T) {
	for _, raw := range []string{"not a url", "rpc.example.com", "http://", "://missing-scheme"} {
		cfg := testChain("Juno")
		cfg.RPCEndpoint = raw
		err := Validate(cfg)
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "rpcEndpoint" {
			t.Errorf("Expected rpcEndpoint error for %q, got %v", raw, err)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := Validate(ChainConfig{})
	if err == nil || err.Error() != `chain config "<unnamed>": configName is empty` {
		t.Errorf("Unexpected message: %v", err)
	}
}
