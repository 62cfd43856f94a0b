package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/store"

	"go.uber.org/zap"
)

var ErrEmptyContractAddress = errors.New("contract address is empty")

type ContractRegistry struct {
	list   *list[models.Contract]
	logger *zap.SugaredLogger
}

type ContractOption func(*ContractRegistry)

// WithContractLogger sets the logger used when the existence checks cannot
// read the store.
func WithContractLogger(l *zap.SugaredLogger) ContractOption {
	return func(r *ContractRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewContractRegistry(s store.Store, onChange ChangeFunc, opts ...ContractOption) *ContractRegistry {
	r := &ContractRegistry{
		list: &list[models.Contract]{
			store:    s,
			key:      store.KeyContracts,
			labelOf:  func(c models.Contract) string { return c.Label },
			onChange: onChange,
		},
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ContractRegistry) List() ([]models.Contract, error) {
	return r.list.all()
}

func (r *ContractRegistry) Add(contract models.Contract) error {
	contract.ContractAddress = strings.TrimSpace(contract.ContractAddress)
	if contract.ContractAddress == "" {
		return fmt.Errorf("contract %q: %w", contract.Label, ErrEmptyContractAddress)
	}
	return r.list.add(contract)
}

func (r *ContractRegistry) Delete(label string) error {
	return r.list.remove(label)
}

// LabelExists reports whether a contract with label is stored. A storage
// read error is logged and reported as false; Add re-checks under the lock.
func (r *ContractRegistry) LabelExists(label string) bool {
	ok, err := r.list.exists(func(c models.Contract) bool { return c.Label == label })
	if err != nil {
		r.logger.Errorw("cannot read contracts", "error", err)
		return false
	}
	return ok
}

// AddressExists reports whether a contract address is already tracked under
// any label.
func (r *ContractRegistry) AddressExists(address string) bool {
	address = strings.TrimSpace(address)
	ok, err := r.list.exists(func(c models.Contract) bool { return c.ContractAddress == address })
	if err != nil {
		r.logger.Errorw("cannot read contracts", "error", err)
		return false
	}
	return ok
}

// Sort returns a copy of contracts in the display order. SortNone keeps
// storage order.
func Sort(contracts []models.Contract, order config.ContractSortOrder) []models.Contract {
	out := append([]models.Contract(nil), contracts...)
	switch order {
	case config.SortAlphabetical:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
		})
	case config.SortCodeID:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CodeID < out[j].CodeID })
	}
	return out
}
