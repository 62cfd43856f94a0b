package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	mnemonicA = "economy stock theory fatal elder harbor betray wasp final emotion task crumble siren bottom lizard educate guess current outdoor pair theory focus wife stone"
	mnemonicB = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	mnemonicC = "legal winner thank year wave sausage worth useful legal winner thank yellow"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchBalance(ctx context.Context, address string, chain config.ChainConfig) string {
	args := m.Called(address, chain.ConfigName)
	return args.String(0)
}

type fixedChain struct {
	chain config.ChainConfig
	err   error
}

func (f fixedChain) ActiveChain() (config.ChainConfig, error) {
	return f.chain, f.err
}

var wasmChain = fixedChain{chain: config.ChainConfig{ConfigName: "Malaga", AddressPrefix: "wasm", ChainDenom: "umlg"}}

// fakeDerive maps mnemonics to predictable addresses without key derivation.
func fakeDerive(mnemonic, prefix string) (string, error) {
	switch mnemonic {
	case mnemonicA:
		return prefix + "1a", nil
	case mnemonicB:
		return prefix + "1b", nil
	case mnemonicC:
		return prefix + "1c", nil
	}
	return "", errors.New("unknown mnemonic")
}

func newAccounts(t *testing.T, fetcher BalanceFetcher, opts ...AccountOption) (*AccountRegistry, *store.DB) {
	t.Helper()
	s := store.NewMemory()
	opts = append([]AccountOption{WithDeriver(fakeDerive)}, opts...)
	return NewAccountRegistry(s, wasmChain, fetcher, opts...), s
}

func TestAccountRegistry_AddList(t *testing.T) {
	r, _ := newAccounts(t, new(MockFetcher))

	require.NoError(t, r.Add(models.Account{Label: "alice", Mnemonic: mnemonicA}))
	accounts, err := r.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice", accounts[0].Label)
	assert.Empty(t, accounts[0].Address)
	assert.True(t, r.LabelExists("alice"))
	assert.False(t, r.LabelExists("Alice"))
}

func TestAccountRegistry_DuplicateLabel(t *testing.T) {
	r, s := newAccounts(t, new(MockFetcher))
	require.NoError(t, r.Add(models.Account{Label: "alice", Mnemonic: mnemonicA}))
	before, err := s.Get(store.KeyAccounts)
	require.NoError(t, err)

	err = r.Add(models.Account{Label: "alice", Mnemonic: mnemonicB})
	assert.ErrorIs(t, err, ErrDuplicateLabel)
	assert.Contains(t, err.Error(), "alice")

	after, err := s.Get(store.KeyAccounts)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	accounts, err := r.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, mnemonicA, accounts[0].Mnemonic)
}

func TestAccountRegistry_AddRejectsBadInput(t *testing.T) {
	r, _ := newAccounts(t, new(MockFetcher))
	assert.ErrorIs(t, r.Add(models.Account{Label: " ", Mnemonic: mnemonicA}), ErrEmptyLabel)
	assert.Error(t, r.Add(models.Account{Label: "bob", Mnemonic: "not a mnemonic"}))
	assert.False(t, r.LabelExists("bob"))
}

func TestAccountRegistry_Delete(t *testing.T) {
	r, s := newAccounts(t, new(MockFetcher))
	require.NoError(t, r.Add(models.Account{Label: "alice", Mnemonic: mnemonicA}))
	require.NoError(t, r.Add(models.Account{Label: "bob", Mnemonic: mnemonicB}))

	// Seed a legacy duplicate directly in storage; Delete removes all matches.
	require.NoError(t, s.Set(store.KeyAccounts, []byte(fmt.Sprintf(
		`[{"label":"alice","mnemonic":%q},{"label":"bob","mnemonic":%q},{"label":"alice","mnemonic":%q}]`,
		mnemonicA, mnemonicB, mnemonicC))))

	require.NoError(t, r.Delete("alice"))
	accounts, err := r.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "bob", accounts[0].Label)

	require.NoError(t, r.Delete("nobody"))
	accounts, err = r.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestAccountRegistry_EnrichmentIsolation(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchBalance", "wasm1a", "Malaga").Return("100")
	fetcher.On("FetchBalance", "wasm1b", "Malaga").Return(models.BalanceUnavailable)
	fetcher.On("FetchBalance", "wasm1c", "Malaga").Return("300")

	r, _ := newAccounts(t, fetcher)
	for _, a := range []models.Account{
		{Label: "one", Mnemonic: mnemonicA},
		{Label: "two", Mnemonic: mnemonicB},
		{Label: "three", Mnemonic: mnemonicC},
	} {
		require.NoError(t, r.Add(a))
	}

	accounts, err := r.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{accounts[0].Label, accounts[1].Label, accounts[2].Label})
	assert.Equal(t, "100", accounts[0].Balance)
	assert.Equal(t, models.BalanceUnavailable, accounts[1].Balance)
	assert.Equal(t, "wasm1b", accounts[1].Address)
	assert.Equal(t, "300", accounts[2].Balance)
	fetcher.AssertExpectations(t)
}

func TestAccountRegistry_DeriveFailureDegrades(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchBalance", "wasm1a", "Malaga").Return("1")

	r, s := newAccounts(t, fetcher)
	require.NoError(t, s.Set(store.KeyAccounts, []byte(fmt.Sprintf(
		`[{"label":"broken","mnemonic":"garbage words"},{"label":"ok","mnemonic":%q}]`, mnemonicA))))

	accounts, err := r.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, models.BalanceUnavailable, accounts[0].Balance)
	assert.Empty(t, accounts[0].Address)
	assert.Equal(t, "1", accounts[1].Balance)
	fetcher.AssertNotCalled(t, "FetchBalance", "", mock.Anything)
}

func TestAccountRegistry_ActiveNeedsChain(t *testing.T) {
	s := store.NewMemory()
	r := NewAccountRegistry(s, fixedChain{err: config.ErrConfigurationMissing}, new(MockFetcher), WithDeriver(fakeDerive))
	require.NoError(t, r.Add(models.Account{Label: "alice", Mnemonic: mnemonicA}))

	_, err := r.List(context.Background(), true)
	assert.ErrorIs(t, err, config.ErrConfigurationMissing)

	accounts, err := r.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

// slowFetcher records how many fetches run at once.
type slowFetcher struct {
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (f *slowFetcher) FetchBalance(ctx context.Context, address string, chain config.ChainConfig) string {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	atomic.AddInt32(&f.inFlight, -1)
	return address
}

func TestAccountRegistry_ConcurrentBoundedAndOrdered(t *testing.T) {
	f := &slowFetcher{delay: 50 * time.Millisecond}
	s := store.NewMemory()
	r := NewAccountRegistry(s, wasmChain, f, WithWorkers(3),
		WithDeriver(func(m, p string) (string, error) { return p + "1" + m, nil }))

	var raw []models.Account
	for i := 0; i < 9; i++ {
		raw = append(raw, models.Account{Label: fmt.Sprintf("acc%d", i), Mnemonic: fmt.Sprintf("m%d", i)})
	}
	// Write directly: these fake mnemonics would not pass Add validation.
	require.NoError(t, r.list.save(raw))

	start := time.Now()
	accounts, err := r.List(context.Background(), true)
	require.NoError(t, err)
	elapsed := time.Since(start)

	require.Len(t, accounts, 9)
	for i, a := range accounts {
		assert.Equal(t, fmt.Sprintf("acc%d", i), a.Label)
		assert.Equal(t, fmt.Sprintf("wasm1m%d", i), a.Balance)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&f.peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&f.peak), int32(1))
	assert.Less(t, elapsed, 9*f.delay)
}

func TestAccountRegistry_ConcurrentAddsNoLostUpdates(t *testing.T) {
	changes := int32(0)
	r, _ := newAccounts(t, new(MockFetcher), WithAccountChange(func(key string) {
		assert.Equal(t, store.KeyAccounts, key)
		atomic.AddInt32(&changes, 1)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Add(models.Account{Label: fmt.Sprintf("acc%d", i), Mnemonic: mnemonicA}))
		}(i)
	}
	wg.Wait()

	accounts, err := r.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, accounts, 20)
	assert.Equal(t, int32(20), atomic.LoadInt32(&changes))
}

func TestAccountRegistry_Get(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchBalance", "wasm1a", "Malaga").Return("7")
	r, _ := newAccounts(t, fetcher)
	require.NoError(t, r.Add(models.Account{Label: "alice", Mnemonic: mnemonicA}))

	acc, ok, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "wasm1a", acc.Address)
	assert.Equal(t, "7", acc.Balance)

	_, ok, err = r.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
