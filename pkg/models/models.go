package models

import (
	"encoding/json"
	"time"
)

// BalanceUnavailable is shown instead of a balance that could not be fetched.
const BalanceUnavailable = "NaN"

// Account is a named wallet. Only Label and Mnemonic are persisted; Address
// and Balance are recomputed for the active chain on every enrichment pass.
type Account struct {
	Label    string `json:"label"`
	Mnemonic string `json:"mnemonic"`
	Address  string `json:"-"`
	Balance  string `json:"-"`
}

// Contract is a tracked contract instance.
type Contract struct {
	Label           string `json:"label"`
	ContractAddress string `json:"contractAddress"`
	CodeID          int64  `json:"codeId"`
	Creator         string `json:"creator,omitempty"`
	InitializedOn   string `json:"initializedOn,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// HistoryKind tells queries and executions apart.
type HistoryKind string

const (
	HistoryQuery   HistoryKind = "query"
	HistoryExecute HistoryKind = "execute"
)

// HistoryEntry records one request sent to a contract.
type HistoryEntry struct {
	Label           string          `json:"label"`
	ContractAddress string          `json:"contractAddress"`
	Kind            HistoryKind     `json:"kind"`
	Request         json.RawMessage `json:"request"`
	ChainID         string          `json:"chainId"`
	RecordedAt      time.Time       `json:"recordedAt"`
}

// ChainResult is the outcome of testing one configured chain.
type ChainResult struct {
	Name            string `json:"name"`
	ConfigChainID   string `json:"configChainId"`
	ObservedChainID string `json:"observedChainId,omitempty"`
	RPCEndpoint     string `json:"rpcEndpoint"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

// TestReport holds the results of a configuration test run.
type TestReport struct {
	ConfigPath      string        `json:"configPath"`
	ValidStructure  bool          `json:"validStructure"`
	StructureErrors []string      `json:"structureErrors,omitempty"`
	ChainCount      int           `json:"chainCount"`
	SelectedChain   string        `json:"selectedChain,omitempty"`
	SelectionError  string        `json:"selectionError,omitempty"`
	Chains          []ChainResult `json:"chains,omitempty"`
}

// OK reports whether every chain is structurally valid and reachable with the
// configured chain id.
func (r TestReport) OK() bool {
	if !r.ValidStructure {
		return false
	}
	for _, c := range r.Chains {
		if c.Status != "ok" {
			return false
		}
	}
	return true
}
