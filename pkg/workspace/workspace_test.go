package workspace

import (
	"path/filepath"
	"testing"

	"cwkit/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(name, prefix string) config.ChainConfig {
	return config.ChainConfig{
		ConfigName:      name,
		ChainID:         name + "-1",
		AddressPrefix:   prefix,
		RPCEndpoint:     "http://localhost:26657",
		DefaultGasPrice: "0.025",
		ChainDenom:      "u" + prefix,
	}
}

func TestWorkspace_ActiveChainFallback(t *testing.T) {
	file := config.File{Chains: []config.ChainConfig{chain("Malaga", "wasm"), chain("Juno", "juno")}, SelectedChain: "Osmosis"}
	w := New(config.NewStore(file, "", nil), nil)

	c, err := w.ActiveChain()
	require.NoError(t, err)
	assert.Equal(t, "Malaga", c.ConfigName)
	assert.ErrorIs(t, w.Warning(), config.ErrConfigurationNotFound)
}

func TestWorkspace_SelectChainPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cwkit.json")
	file := config.File{Chains: []config.ChainConfig{chain("Malaga", "wasm"), chain("Juno", "juno")}, SelectedChain: "Osmosis"}
	w := New(config.NewStore(file, path, nil), nil)
	_, _ = w.ActiveChain()

	c, err := w.SelectChain("juno")
	require.NoError(t, err)
	assert.Equal(t, "juno", c.AddressPrefix)
	assert.NoError(t, w.Warning())

	active, err := w.ActiveChain()
	require.NoError(t, err)
	assert.Equal(t, "Juno", active.ConfigName)

	loaded, err := config.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Juno", loaded.SelectedChain)

	_, err = w.SelectChain("nope")
	assert.ErrorIs(t, err, config.ErrConfigurationNotFound)
}

func TestWorkspace_NoChains(t *testing.T) {
	w := New(config.NewStore(config.File{}, "", nil), nil)
	_, err := w.ActiveChain()
	assert.ErrorIs(t, err, config.ErrConfigurationMissing)
}

func TestWorkspace_Selections(t *testing.T) {
	w := New(config.NewStore(config.File{}, "", nil), nil)
	w.SelectAccount("alice")
	w.SelectContract("cw20")
	assert.Equal(t, "alice", w.SelectedAccount())
	assert.Equal(t, "cw20", w.SelectedContract())

	w.Forget("bob", "")
	assert.Equal(t, "alice", w.SelectedAccount())
	w.Forget("alice", "cw20")
	assert.Empty(t, w.SelectedAccount())
	assert.Empty(t, w.SelectedContract())
}

func TestWorkspace_SelectChainUnwritableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "cwkit.json")
	file := config.File{Chains: []config.ChainConfig{chain("Malaga", "wasm"), chain("Juno", "juno")}, SelectedChain: "Malaga"}
	w := New(config.NewStore(file, path, nil), nil)

	_, err := w.SelectChain("Juno")
	require.Error(t, err)

	active, err := w.ActiveChain()
	require.NoError(t, err)
	assert.Equal(t, "Malaga", active.ConfigName)
}
