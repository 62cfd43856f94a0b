package registry

import (
	"context"
	"fmt"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/store"
	"cwkit/pkg/wallet"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent balance fetches during enrichment.
const DefaultWorkers = 8

// ChainSource supplies the chain used for address derivation and balances.
type ChainSource interface {
	ActiveChain() (config.ChainConfig, error)
}

// BalanceFetcher returns an account balance or models.BalanceUnavailable. It
// must not block past its own timeout.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, address string, chain config.ChainConfig) string
}

// DeriveFunc turns a mnemonic into an address for a prefix.
type DeriveFunc func(mnemonic, addressPrefix string) (string, error)

type AccountOption func(*AccountRegistry)

// WithWorkers overrides DefaultWorkers.
func WithWorkers(n int) AccountOption {
	return func(r *AccountRegistry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithDeriver replaces wallet.Derive, mostly for tests.
func WithDeriver(d DeriveFunc) AccountOption {
	return func(r *AccountRegistry) { r.derive = d }
}

// WithAccountChange registers a hook run after every successful mutation.
func WithAccountChange(fn ChangeFunc) AccountOption {
	return func(r *AccountRegistry) { r.list.onChange = fn }
}

// WithAccountLogger sets the logger used for per-account enrichment failures.
func WithAccountLogger(l *zap.SugaredLogger) AccountOption {
	return func(r *AccountRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

type AccountRegistry struct {
	list    *list[models.Account]
	chains  ChainSource
	fetcher BalanceFetcher
	derive  DeriveFunc
	workers int
	logger  *zap.SugaredLogger
}

func NewAccountRegistry(s store.Store, chains ChainSource, fetcher BalanceFetcher, opts ...AccountOption) *AccountRegistry {
	r := &AccountRegistry{
		list: &list[models.Account]{
			store:   s,
			key:     store.KeyAccounts,
			labelOf: func(a models.Account) string { return a.Label },
		},
		chains:  chains,
		fetcher: fetcher,
		derive:  wallet.Derive,
		workers: DefaultWorkers,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the stored accounts. With active set, every account is
// enriched with its address on the active chain and its balance; one
// account failing never fails the list, it just shows the sentinel balance.
// Order is always storage order.
func (r *AccountRegistry) List(ctx context.Context, active bool) ([]models.Account, error) {
	accounts, err := r.list.all()
	if err != nil {
		return nil, err
	}
	if !active || len(accounts) == 0 {
		return accounts, nil
	}

	chain, err := r.chains.ActiveChain()
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := range accounts {
		acc := &accounts[i]
		g.Go(func() error {
			addr, err := r.derive(acc.Mnemonic, chain.AddressPrefix)
			if err != nil {
				r.logger.Warnw("address derivation failed", "account", acc.Label, "chain", chain.ConfigName, "error", err)
				acc.Address = ""
				acc.Balance = models.BalanceUnavailable
				return nil
			}
			acc.Address = addr
			acc.Balance = r.fetcher.FetchBalance(ctx, addr, chain)
			return nil
		})
	}
	_ = g.Wait()
	return accounts, nil
}

// Add stores a new account. The label must be unique and the mnemonic valid.
func (r *AccountRegistry) Add(account models.Account) error {
	if !wallet.IsValid(account.Mnemonic) {
		return fmt.Errorf("account %q: %w", account.Label, wallet.ErrInvalidMnemonic)
	}
	account.Address = ""
	account.Balance = ""
	return r.list.add(account)
}

// Delete removes every account labelled label. Unknown labels are a no-op.
func (r *AccountRegistry) Delete(label string) error {
	return r.list.remove(label)
}

// LabelExists reports whether an account with label is stored. A storage
// read error is logged and reported as false; Add re-checks under the lock.
func (r *AccountRegistry) LabelExists(label string) bool {
	ok, err := r.list.exists(func(a models.Account) bool { return a.Label == label })
	if err != nil {
		r.logger.Errorw("cannot read accounts", "error", err)
		return false
	}
	return ok
}

// Get returns the enriched account with label.
func (r *AccountRegistry) Get(ctx context.Context, label string) (models.Account, bool, error) {
	accounts, err := r.List(ctx, false)
	if err != nil {
		return models.Account{}, false, err
	}
	for _, a := range accounts {
		if a.Label != label {
			continue
		}
		enriched, err := r.enrichOne(ctx, a)
		return enriched, true, err
	}
	return models.Account{}, false, nil
}

func (r *AccountRegistry) enrichOne(ctx context.Context, a models.Account) (models.Account, error) {
	chain, err := r.chains.ActiveChain()
	if err != nil {
		return a, err
	}
	addr, err := r.derive(a.Mnemonic, chain.AddressPrefix)
	if err != nil {
		return a, fmt.Errorf("account %q: %w", a.Label, err)
	}
	a.Address = addr
	a.Balance = r.fetcher.FetchBalance(ctx, addr, chain)
	return a, nil
}
