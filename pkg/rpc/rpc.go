package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cwkit/pkg/config"
	"cwkit/pkg/models"

	ethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// BalanceQueryPath is the ABCI gRPC route of the bank module balance query.
const BalanceQueryPath = "/cosmos.bank.v1beta1.Query/Balance"

var (
	BalanceTimeout = 10 * time.Second
	FaucetTimeout  = 30 * time.Second
)

var (
	// ErrNetwork wraps every failure talking to a chain node.
	ErrNetwork = errors.New("network failure")
	// ErrNoFaucet is returned when the chain has no faucetEndpoint.
	ErrNoFaucet = errors.New("chain has no faucet endpoint configured")
)

// Client talks to the Tendermint JSON-RPC endpoint of a chain.
type Client struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		httpClient: &http.Client{Timeout: FaucetTimeout},
		logger:     logger,
	}
}

type abciQueryResult struct {
	Response struct {
		Code      uint32 `json:"code"`
		Log       string `json:"log"`
		Codespace string `json:"codespace"`
		Value     []byte `json:"value"`
	} `json:"response"`
}

type statusResult struct {
	NodeInfo struct {
		Network string `json:"network"`
	} `json:"node_info"`
	SyncInfo struct {
		LatestBlockHeight string `json:"latest_block_height"`
	} `json:"sync_info"`
}

// FetchBalance returns the chain denom balance of address, or
// models.BalanceUnavailable on any failure. It never blocks longer than
// BalanceTimeout.
func (c *Client) FetchBalance(ctx context.Context, address string, chain config.ChainConfig) string {
	bal, err := c.FetchBalanceE(ctx, address, chain)
	if err != nil {
		c.logger.Warnw("balance fetch failed", "chain", chain.ConfigName, "address", address, "error", err)
		return models.BalanceUnavailable
	}
	return bal
}

// FetchBalanceE is FetchBalance with the error exposed.
func (c *Client) FetchBalanceE(ctx context.Context, address string, chain config.ChainConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, BalanceTimeout)
	defer cancel()

	client, err := ethrpc.DialContext(ctx, chain.RPCEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrNetwork, chain.RPCEndpoint, err)
	}
	defer client.Close()

	data := strings.ToUpper(hex.EncodeToString(encodeBalanceRequest(address, chain.ChainDenom)))
	var res abciQueryResult
	// Positional params: path, data, height, prove. Height is an int64 and
	// Tendermint expects those as strings.
	if err := client.CallContext(ctx, &res, "abci_query", BalanceQueryPath, data, "0", false); err != nil {
		return "", fmt.Errorf("%w: abci_query on %s: %v", ErrNetwork, chain.RPCEndpoint, err)
	}
	if res.Response.Code != 0 {
		return "", fmt.Errorf("%w: abci_query code %d (%s): %s", ErrNetwork, res.Response.Code, res.Response.Codespace, res.Response.Log)
	}
	coin, err := decodeBalanceResponse(res.Response.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return coin.Amount, nil
}

// FetchChainID asks the node for the chain id it serves.
func (c *Client) FetchChainID(ctx context.Context, rpcEndpoint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, BalanceTimeout)
	defer cancel()

	client, err := ethrpc.DialContext(ctx, rpcEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrNetwork, rpcEndpoint, err)
	}
	defer client.Close()

	var res statusResult
	if err := client.CallContext(ctx, &res, "status"); err != nil {
		return "", fmt.Errorf("%w: status on %s: %v", ErrNetwork, rpcEndpoint, err)
	}
	if res.NodeInfo.Network == "" {
		return "", fmt.Errorf("%w: status on %s returned no network", ErrNetwork, rpcEndpoint)
	}
	return res.NodeInfo.Network, nil
}

// RequestFunds asks the chain faucet to credit address with the chain denom.
func (c *Client) RequestFunds(ctx context.Context, chain config.ChainConfig, address string) error {
	endpoint := strings.TrimRight(strings.TrimSpace(chain.FaucetEndpoint), "/")
	if endpoint == "" {
		return fmt.Errorf("chain %q: %w", chain.ConfigName, ErrNoFaucet)
	}
	body, err := json.Marshal(map[string]string{
		"denom":   chain.ChainDenom,
		"address": address,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, FaucetTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/credit", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: faucet %s: %v", ErrNetwork, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: faucet %s returned %d: %s", ErrNetwork, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	c.logger.Infow("faucet request accepted", "chain", chain.ConfigName, "address", address)
	return nil
}
