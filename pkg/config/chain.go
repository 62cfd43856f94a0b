package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrConfigurationMissing means no chains are configured at all.
	ErrConfigurationMissing = errors.New("chain settings have not been configured, add at least one entry to \"chains\" in the cwkit config file")
	// ErrConfigurationNotFound means the selected chain name matches no configured chain.
	ErrConfigurationNotFound = errors.New("selected chain not found")
)

// Resolution is the outcome of resolving the active chain. Warning is set when
// the selected name did not match and the first chain was used instead.
type Resolution struct {
	Chain   ChainConfig
	Warning error
}

// FellBack reports whether the resolution used the default chain because the
// selected one was missing.
func (r Resolution) FellBack() bool {
	return r.Warning != nil
}

// ResolveActiveChain picks the active chain. An empty selectedName selects
// the first declared chain. Names are matched case-insensitively.
func ResolveActiveChain(configs []ChainConfig, selectedName string) (Resolution, error) {
	if len(configs) == 0 {
		return Resolution{}, ErrConfigurationMissing
	}
	if strings.TrimSpace(selectedName) == "" {
		return Resolution{Chain: configs[0]}, nil
	}
	for _, c := range configs {
		if strings.EqualFold(c.ConfigName, selectedName) {
			return Resolution{Chain: c}, nil
		}
	}
	return Resolution{
		Chain: configs[0],
		Warning: fmt.Errorf("currently selected chain is %q but no chain config with that name was found, selecting fallback chain %q: %w",
			selectedName, configs[0].ConfigName, ErrConfigurationNotFound),
	}, nil
}

// Store is the read-only view of the configured chains plus the currently
// selected chain name.
type Store struct {
	mu       sync.RWMutex
	file     File
	path     string
	logger   *zap.SugaredLogger
	reported map[string]bool
	// selection whose fallback warning was already logged
	warnedFallback string
}

// NewStore wraps a loaded config document. path may be empty, in which case
// selection changes are kept in memory only.
func NewStore(file File, path string, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{file: file, path: path, logger: logger, reported: make(map[string]bool)}
}

// Chains returns a copy of the configured chains.
func (s *Store) Chains() []ChainConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChainConfig(nil), s.file.Chains...)
}

// Settings returns the typed preference view.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Settings
}

// SelectedName returns the raw selected chain name, possibly empty.
func (s *Store) SelectedName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.SelectedChain
}

// Active resolves the active chain. The fallback warning is logged once per
// stale selection; callers still get it on every Resolution.
func (s *Store) Active() (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := ResolveActiveChain(s.file.Chains, s.file.SelectedChain)
	if err != nil {
		return res, err
	}
	if res.Warning != nil && s.warnedFallback != s.file.SelectedChain {
		s.warnedFallback = s.file.SelectedChain
		s.logger.Warnw("falling back to default chain", "selected", s.file.SelectedChain, "fallback", res.Chain.ConfigName)
	}
	return res, nil
}

// Select makes name the selected chain and persists it. The name must match
// a configured chain; the stored spelling is the configured one. The
// selection only changes once the file has been written.
func (s *Store) Select(name string) (ChainConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.file.Chains) == 0 {
		return ChainConfig{}, ErrConfigurationMissing
	}
	for _, c := range s.file.Chains {
		if !strings.EqualFold(c.ConfigName, name) {
			continue
		}
		next := s.file
		next.SelectedChain = c.ConfigName
		if s.path != "" {
			if err := SaveConfig(next, s.path); err != nil {
				return ChainConfig{}, fmt.Errorf("select chain %q: %w", c.ConfigName, err)
			}
		}
		s.file = next
		return c, nil
	}
	return ChainConfig{}, fmt.Errorf("chain %q: %w", name, ErrConfigurationNotFound)
}

// Path is the file Select writes to; empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// ReportInvalid validates every chain and logs the failures once per chain.
// Invalid chains stay in the list; only using them fails.
func (s *Store) ReportInvalid() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range s.file.Chains {
		if err := Validate(c); err != nil {
			errs = append(errs, err)
			if !s.reported[c.ConfigName] {
				s.reported[c.ConfigName] = true
				s.logger.Warnw("invalid chain configuration", "chain", c.ConfigName, "error", err)
			}
		}
	}
	return errs
}
