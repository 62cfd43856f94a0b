// Package workspace holds the per-session selection state: the active chain
// and the selected account and contract. It is passed explicitly to whatever
// needs it instead of living in package globals.
package workspace

import (
	"sync"

	"cwkit/pkg/config"

	"go.uber.org/zap"
)

type Workspace struct {
	chains *config.Store
	logger *zap.SugaredLogger

	mu               sync.RWMutex
	selectedAccount  string
	selectedContract string
	lastWarning      error
}

func New(chains *config.Store, logger *zap.SugaredLogger) *Workspace {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Workspace{chains: chains, logger: logger}
}

// ActiveChain resolves the active chain, falling back to the first one when
// the selection is stale. It satisfies registry.ChainSource.
func (w *Workspace) ActiveChain() (config.ChainConfig, error) {
	res, err := w.Resolve()
	return res.Chain, err
}

// Resolve is ActiveChain with the fallback warning exposed.
func (w *Workspace) Resolve() (config.Resolution, error) {
	res, err := w.chains.Active()
	w.mu.Lock()
	w.lastWarning = res.Warning
	w.mu.Unlock()
	return res, err
}

// Warning returns the fallback warning of the last resolution, if any.
func (w *Workspace) Warning() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastWarning
}

// SelectChain switches the active chain and persists the choice. The
// selected account and contract are kept: they are chain independent.
func (w *Workspace) SelectChain(name string) (config.ChainConfig, error) {
	chain, err := w.chains.Select(name)
	if err != nil {
		return config.ChainConfig{}, err
	}
	if err := config.Validate(chain); err != nil {
		w.logger.Warnw("selected chain has an invalid configuration", "chain", chain.ConfigName, "error", err)
	}
	w.mu.Lock()
	w.lastWarning = nil
	w.mu.Unlock()
	w.logger.Infow("active chain changed", "chain", chain.ConfigName, "chainId", chain.ChainID)
	return chain, nil
}

// Settings satisfies registry.SettingsSource.
func (w *Workspace) Settings() config.Settings {
	return w.chains.Settings()
}

func (w *Workspace) Chains() []config.ChainConfig {
	return w.chains.Chains()
}

func (w *Workspace) SelectAccount(label string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selectedAccount = label
}

func (w *Workspace) SelectedAccount() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.selectedAccount
}

func (w *Workspace) SelectContract(label string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selectedContract = label
}

func (w *Workspace) SelectedContract() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.selectedContract
}

// Forget clears selections that point at a deleted account or contract.
func (w *Workspace) Forget(accountLabel, contractLabel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if accountLabel != "" && w.selectedAccount == accountLabel {
		w.selectedAccount = ""
	}
	if contractLabel != "" && w.selectedContract == contractLabel {
		w.selectedContract = ""
	}
}
