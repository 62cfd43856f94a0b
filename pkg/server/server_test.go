package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/registry"
	"cwkit/pkg/rpc"
	"cwkit/pkg/store"
	"cwkit/pkg/watcher"
	"cwkit/pkg/workspace"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "economy stock theory fatal elder harbor betray wasp final emotion task crumble siren bottom lizard educate guess current outdoor pair theory focus wife stone"

type fixedFetcher struct{}

func (fixedFetcher) FetchBalance(ctx context.Context, address string, chain config.ChainConfig) string {
	return "1500000"
}

type fakeFaucet struct {
	address string
	err     error
}

func (f *fakeFaucet) RequestFunds(ctx context.Context, chain config.ChainConfig, address string) error {
	f.address = address
	return f.err
}

func newTestServer(t *testing.T, chains []config.ChainConfig) (*Server, *fakeFaucet) {
	t.Helper()
	db := store.NewMemory()
	t.Cleanup(func() { _ = db.Close() })

	file := config.File{
		Chains:   chains,
		Settings: config.Settings{RawSortOrder: "Alphabetical", RawHistoryStored: "5"},
	}
	ws := workspace.New(config.NewStore(file, "", nil), nil)
	accounts := registry.NewAccountRegistry(db, ws, fixedFetcher{})
	w := watcher.NewWatcher(accounts, 0, nil)
	faucet := &fakeFaucet{}
	s := NewServer(Deps{
		Workspace: ws,
		Accounts:  accounts,
		Contracts: registry.NewContractRegistry(db, w.Changed),
		History:   registry.NewHistoryRegistry(db, ws),
		Watcher:   w,
		Faucet:    faucet,
	})
	return s, faucet
}

func testChains() []config.ChainConfig {
	return []config.ChainConfig{
		{
			ConfigName:      "Local",
			ChainID:         "testing",
			AddressPrefix:   "wasm",
			RPCEndpoint:     "http://localhost:26657",
			DefaultGasPrice: "0.025",
			ChainDenom:      "ustake",
		},
		{
			ConfigName:      "Malaga",
			ChainID:         "malaga-420",
			AddressPrefix:   "wasm",
			RPCEndpoint:     "https://rpc.malaga-420.cosmwasm.com:443",
			DefaultGasPrice: "0.05",
			ChainDenom:      "umlg",
		},
	}
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	rr := do(t, s, "GET", "/api/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Contains(t, resp, "accounts")
	assert.Contains(t, resp, "chain")
}

func TestHandleChain_NoConfiguration(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rr := do(t, s, "GET", "/api/chain", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSelectChain(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	rr := do(t, s, "POST", "/api/chain", map[string]string{"name": "malaga"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, "GET", "/api/chain", nil)
	var chain map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &chain))
	assert.Equal(t, "malaga-420", chain["chainId"])

	rr = do(t, s, "POST", "/api/chain", map[string]string{"name": "mainnet"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAccounts_MnemonicNeverReturned(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	rr := do(t, s, "POST", "/api/accounts", map[string]string{"label": "alice", "mnemonic": testMnemonic})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "economy")

	rr = do(t, s, "GET", "/api/accounts?active=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "economy")

	var views []AccountView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "alice", views[0].Label)
	assert.Equal(t, strings.Repeat("**** ", 23)+"****", views[0].Mnemonic)
	assert.True(t, strings.HasPrefix(views[0].Address, "wasm1"))
	assert.Equal(t, "1500000", views[0].Balance)
	assert.Equal(t, "1,500,000 ustake", views[0].Display)
}

func TestAddAccount_Errors(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	rr := do(t, s, "POST", "/api/accounts", map[string]string{"label": "alice", "mnemonic": "not a mnemonic"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, "POST", "/api/accounts", map[string]string{"label": "alice", "mnemonic": testMnemonic})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, s, "POST", "/api/accounts", map[string]string{"label": "alice", "mnemonic": testMnemonic})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAddAccount_Generate(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	rr := do(t, s, "POST", "/api/accounts", map[string]interface{}{"label": "fresh", "generate": true})
	require.Equal(t, http.StatusCreated, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, strings.Fields(body["mnemonic"]), 24)
}

func TestGetAndDeleteAccount(t *testing.T) {
	s, _ := newTestServer(t, testChains())
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/accounts", map[string]string{"label": "alice", "mnemonic": testMnemonic}).Code)

	rr := do(t, s, "GET", "/api/accounts/alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", s.deps.Workspace.SelectedAccount())

	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/accounts/bob", nil).Code)

	assert.Equal(t, http.StatusNoContent, do(t, s, "DELETE", "/api/accounts/alice", nil).Code)
	assert.Equal(t, "", s.deps.Workspace.SelectedAccount())
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/accounts/alice", nil).Code)
}

func TestFaucet(t *testing.T) {
	s, faucet := newTestServer(t, testChains())
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/accounts", map[string]string{"label": "alice", "mnemonic": testMnemonic}).Code)

	rr := do(t, s, "POST", "/api/accounts/alice/faucet", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, strings.HasPrefix(faucet.address, "wasm1"))

	faucet.err = rpc.ErrNoFaucet
	rr = do(t, s, "POST", "/api/accounts/alice/faucet", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestContracts(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	for _, c := range []models.Contract{
		{Label: "zeta", ContractAddress: "wasm1z", CodeID: 1},
		{Label: "Alpha", ContractAddress: "wasm1a", CodeID: 7},
	} {
		require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/contracts", c).Code)
	}
	assert.Equal(t, http.StatusConflict, do(t, s, "POST", "/api/contracts", models.Contract{Label: "zeta", ContractAddress: "wasm1q"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/api/contracts", models.Contract{Label: "empty"}).Code)

	rr := do(t, s, "GET", "/api/contracts", nil)
	var contracts []models.Contract
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contracts))
	require.Len(t, contracts, 2)
	assert.Equal(t, "Alpha", contracts[0].Label)
	assert.Equal(t, "testing", contracts[0].InitializedOn)

	require.Equal(t, http.StatusOK, do(t, s, "GET", "/api/contracts/zeta", nil).Code)
	assert.Equal(t, "zeta", s.deps.Workspace.SelectedContract())
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/contracts/missing", nil).Code)

	assert.Equal(t, http.StatusNoContent, do(t, s, "DELETE", "/api/contracts/zeta", nil).Code)
	assert.Equal(t, "", s.deps.Workspace.SelectedContract())
	rr = do(t, s, "GET", "/api/contracts", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contracts))
	assert.Len(t, contracts, 1)
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(t, testChains())

	entry := models.HistoryEntry{Label: "alpha", Kind: models.HistoryQuery, Request: json.RawMessage(`{"count":{}}`)}
	require.Equal(t, http.StatusNoContent, do(t, s, "POST", "/api/history", entry).Code)

	rr := do(t, s, "GET", "/api/history", nil)
	var entries []models.HistoryEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "testing", entries[0].ChainID)

	require.Equal(t, http.StatusNoContent, do(t, s, "DELETE", "/api/history", nil).Code)
	rr = do(t, s, "GET", "/api/history", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	assert.Empty(t, entries)
}

func TestHandleWS(t *testing.T) {
	s, _ := newTestServer(t, testChains())
	server := httptest.NewServer(s.mux)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	var msg map[string]interface{}
	err = ws.ReadJSON(&msg)
	assert.NoError(t, err)
	assert.Equal(t, "initial", msg["type"])

	s.broadcast(watcher.Event{
		Type: watcher.EventAccountsUpdated,
		Data: []models.Account{{Label: "alice", Mnemonic: testMnemonic, Address: "wasm1abc", Balance: "7"}},
	})

	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"accounts_updated"`)
	assert.Contains(t, string(raw), `"wasm1abc"`)
	assert.NotContains(t, string(raw), "economy")
}
