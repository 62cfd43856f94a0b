package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/registry"
	"cwkit/pkg/rpc"
	"cwkit/pkg/utils"
	"cwkit/pkg/wallet"
	"cwkit/pkg/watcher"
	"cwkit/pkg/workspace"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// The API only listens on localhost for the editor host; any origin may connect.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Faucet requests test tokens for an address.
type Faucet interface {
	RequestFunds(ctx context.Context, chain config.ChainConfig, address string) error
}

// Deps are the collaborators the API exposes.
type Deps struct {
	Workspace *workspace.Workspace
	Accounts  *registry.AccountRegistry
	Contracts *registry.ContractRegistry
	History   *registry.HistoryRegistry
	Watcher   *watcher.Watcher
	Faucet    Faucet
	Logger    *zap.SugaredLogger
}

type Server struct {
	deps    Deps
	logger  *zap.SugaredLogger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		deps:    deps,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/chains", s.handleChains)
	s.mux.HandleFunc("GET /api/chain", s.handleChain)
	s.mux.HandleFunc("POST /api/chain", s.handleSelectChain)
	s.mux.HandleFunc("GET /api/settings", s.handleSettings)
	s.mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	s.mux.HandleFunc("POST /api/accounts", s.handleAddAccount)
	s.mux.HandleFunc("GET /api/accounts/{label}", s.handleGetAccount)
	s.mux.HandleFunc("DELETE /api/accounts/{label}", s.handleDeleteAccount)
	s.mux.HandleFunc("POST /api/accounts/{label}/faucet", s.handleFaucet)
	s.mux.HandleFunc("GET /api/contracts", s.handleListContracts)
	s.mux.HandleFunc("POST /api/contracts", s.handleAddContract)
	s.mux.HandleFunc("GET /api/contracts/{label}", s.handleGetContract)
	s.mux.HandleFunc("DELETE /api/contracts/{label}", s.handleDeleteContract)
	s.mux.HandleFunc("GET /api/history", s.handleListHistory)
	s.mux.HandleFunc("POST /api/history", s.handleRecordHistory)
	s.mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	s.mux.HandleFunc("/ws", s.handleWS)
}

// Handler exposes the routes, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.listenToWatcher(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("API server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// AccountView is the wire form of an account. The mnemonic is always masked.
type AccountView struct {
	Label       string `json:"label"`
	Mnemonic    string `json:"mnemonic"`
	Address     string `json:"address,omitempty"`
	Balance     string `json:"balance,omitempty"`
	Display     string `json:"display,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

type chainView struct {
	config.ChainConfig
	Warning    string `json:"warning,omitempty"`
	Validation string `json:"validation,omitempty"`
}

func (s *Server) accountViews(accounts []models.Account) []AccountView {
	chain, _ := s.deps.Workspace.ActiveChain()
	out := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		v := AccountView{
			Label:    a.Label,
			Mnemonic: utils.MaskMnemonic(a.Mnemonic),
			Address:  a.Address,
			Balance:  a.Balance,
		}
		if a.Balance != "" {
			v.Display = utils.FormatCoin(a.Balance, chain.ChainDenom)
		}
		if a.Address != "" {
			v.ExplorerURL = chain.AccountExplorerURL(a.Address)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"accounts":         s.accountViews(s.deps.Watcher.GetAccounts()),
		"selectedAccount":  s.deps.Workspace.SelectedAccount(),
		"selectedContract": s.deps.Workspace.SelectedContract(),
	}
	if res, err := s.deps.Workspace.Resolve(); err == nil {
		data["chain"] = s.chainView(res)
	} else {
		data["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) chainView(res config.Resolution) chainView {
	v := chainView{ChainConfig: res.Chain}
	if res.Warning != nil {
		v.Warning = res.Warning.Error()
	}
	if err := config.Validate(res.Chain); err != nil {
		v.Validation = err.Error()
	}
	return v
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	chains := s.deps.Workspace.Chains()
	out := make([]chainView, 0, len(chains))
	for _, c := range chains {
		out = append(out, s.chainView(config.Resolution{Chain: c}))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Workspace.Resolve()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chainView(res))
}

func (s *Server) handleSelectChain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	chain, err := s.deps.Workspace.SelectChain(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Watcher.Notify(watcher.Event{Type: watcher.EventChainChanged, Data: chain.ConfigName})
	writeJSON(w, http.StatusOK, s.chainView(config.Resolution{Chain: chain}))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Workspace.Settings()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contractSortOrder": st.ContractSortOrder(),
		"responseView":      st.ResponseView(),
		"historyStored":     st.HistoryStored(),
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	active, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	accounts, err := s.deps.Accounts.List(r.Context(), active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.accountViews(accounts))
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label    string `json:"label"`
		Mnemonic string `json:"mnemonic"`
		Generate bool   `json:"generate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	if req.Generate {
		m, err := wallet.NewMnemonic()
		if err != nil {
			writeError(w, err)
			return
		}
		req.Mnemonic = m
	}
	if err := s.deps.Accounts.Add(models.Account{Label: req.Label, Mnemonic: req.Mnemonic}); err != nil {
		writeError(w, err)
		return
	}
	body := map[string]string{"label": req.Label}
	if req.Generate {
		// Shown once so the user can back it up.
		body["mnemonic"] = req.Mnemonic
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	acc, ok, err := s.deps.Accounts.Get(r.Context(), label)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("account %q not found", label)})
		return
	}
	s.deps.Workspace.SelectAccount(label)
	writeJSON(w, http.StatusOK, s.accountViews([]models.Account{acc})[0])
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	if err := s.deps.Accounts.Delete(label); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Workspace.Forget(label, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	acc, ok, err := s.deps.Accounts.Get(r.Context(), label)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("account %q not found", label)})
		return
	}
	chain, err := s.deps.Workspace.ActiveChain()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Faucet.RequestFunds(r.Context(), chain, acc.Address); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"address": acc.Address})
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.deps.Contracts.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registry.Sort(contracts, s.deps.Workspace.Settings().ContractSortOrder()))
}

func (s *Server) handleAddContract(w http.ResponseWriter, r *http.Request) {
	var c models.Contract
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	if c.InitializedOn == "" {
		if chain, err := s.deps.Workspace.ActiveChain(); err == nil {
			c.InitializedOn = chain.ChainID
		}
	}
	if err := s.deps.Contracts.Add(c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	contracts, err := s.deps.Contracts.List()
	if err != nil {
		writeError(w, err)
		return
	}
	for _, c := range contracts {
		if c.Label == label {
			s.deps.Workspace.SelectContract(label)
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("contract %q not found", label)})
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	if err := s.deps.Contracts.Delete(label); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Workspace.Forget("", label)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.History.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	var e models.HistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	if e.ChainID == "" {
		if chain, err := s.deps.Workspace.ActiveChain(); err == nil {
			e.ChainID = chain.ChainID
		}
	}
	if err := s.deps.History.Record(e); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Clear(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	contracts, _ := s.deps.Contracts.List()
	initialData := map[string]interface{}{
		"type": "initial",
		"data": map[string]interface{}{
			"accounts":  s.accountViews(s.deps.Watcher.GetAccounts()),
			"contracts": contracts,
		},
	}

	// Registering under the lock keeps the initial write and broadcasts from
	// interleaving on the connection.
	s.mu.Lock()
	err = conn.WriteJSON(initialData)
	if err == nil {
		s.clients[conn] = true
	}
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher(ctx context.Context) {
	sub := s.deps.Watcher.Subscribe()
	defer s.deps.Watcher.Unsubscribe(sub)

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(event)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast(event watcher.Event) {
	if accounts, ok := event.Data.([]models.Account); ok {
		event.Data = s.accountViews(accounts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrDuplicateLabel):
		status = http.StatusConflict
	case errors.Is(err, config.ErrConfigurationMissing):
		status = http.StatusServiceUnavailable
	case errors.Is(err, config.ErrConfigurationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, config.ErrValidation),
		errors.Is(err, wallet.ErrInvalidMnemonic),
		errors.Is(err, registry.ErrEmptyLabel),
		errors.Is(err, registry.ErrEmptyContractAddress):
		status = http.StatusBadRequest
	case errors.Is(err, rpc.ErrNoFaucet):
		status = http.StatusBadRequest
	case errors.Is(err, rpc.ErrNetwork):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody(err))
}
