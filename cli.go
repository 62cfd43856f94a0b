package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/registry"
	"cwkit/pkg/server"
	"cwkit/pkg/utils"
	"cwkit/pkg/wallet"
	"cwkit/pkg/watcher"
	"cwkit/pkg/workspace"

	"go.uber.org/zap"
	"golang.org/x/term"
)

var errUsage = errors.New("invalid usage, see cwkit -h")

// chainClient is the part of rpc.Client the CLI needs.
type chainClient interface {
	registry.BalanceFetcher
	server.Faucet
	FetchChainID(ctx context.Context, rpcEndpoint string) (string, error)
}

type app struct {
	chains    *config.Store
	ws        *workspace.Workspace
	accounts  *registry.AccountRegistry
	contracts *registry.ContractRegistry
	history   *registry.HistoryRegistry
	watcher   *watcher.Watcher
	client    chainClient
	logger    *zap.SugaredLogger

	out        io.Writer
	jsonOut    bool
	readSecret func(prompt string) (string, error)
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "accounts", "account":
		return a.runAccounts(ctx, rest)
	case "contracts", "contract":
		return a.runContracts(rest)
	case "chain", "chains":
		return a.runChain(rest)
	case "faucet":
		if len(rest) != 1 {
			return errUsage
		}
		return a.faucet(ctx, rest[0])
	case "history":
		return a.runHistory(rest)
	case "config":
		return a.runConfig(rest)
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func sub(args []string) (string, []string) {
	if len(args) == 0 {
		return "list", nil
	}
	return args[0], args[1:]
}

func (a *app) runAccounts(ctx context.Context, args []string) error {
	cmd, rest := sub(args)
	switch cmd {
	case "list":
		return a.listAccounts(ctx, false)
	case "balances":
		return a.listAccounts(ctx, true)
	case "add":
		if len(rest) == 0 {
			return errUsage
		}
		generate := len(rest) > 1 && (rest[1] == "--generate" || rest[1] == "-g")
		return a.addAccount(rest[0], generate)
	case "delete", "rm":
		if len(rest) != 1 {
			return errUsage
		}
		if !a.accounts.LabelExists(rest[0]) {
			return fmt.Errorf("account %q not found", rest[0])
		}
		if err := a.accounts.Delete(rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted account %s\n", rest[0])
		return nil
	}
	return fmt.Errorf("unknown accounts command %q: %w", cmd, errUsage)
}

type accountRow struct {
	Label       string `json:"label"`
	Address     string `json:"address"`
	Balance     string `json:"balance,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

func (a *app) listAccounts(ctx context.Context, balances bool) error {
	// Labels are listable without a chain; addresses and balances are not.
	chain, err := a.ws.ActiveChain()
	hasChain := err == nil
	if !hasChain && balances {
		return err
	}
	accounts, err := a.accounts.List(ctx, balances)
	if err != nil {
		return err
	}

	rows := make([]accountRow, 0, len(accounts))
	for _, acc := range accounts {
		if !balances && hasChain {
			addr, err := wallet.Derive(acc.Mnemonic, chain.AddressPrefix)
			if err != nil {
				a.logger.Warnw("address derivation failed", "account", acc.Label, "error", err)
			}
			acc.Address = addr
		}
		rows = append(rows, accountRow{
			Label:       acc.Label,
			Address:     acc.Address,
			Balance:     acc.Balance,
			ExplorerURL: chain.AccountExplorerURL(acc.Address),
		})
	}

	if a.jsonOut {
		return a.writeJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No accounts. Add one with: cwkit accounts add <label>")
		return nil
	}
	if w := a.ws.Warning(); w != nil {
		fmt.Fprintf(a.out, "Warning: %v\n", w)
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	if balances {
		fmt.Fprintf(tw, "LABEL\tADDRESS\tBALANCE (%s)\n", chain.ConfigName)
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Label, r.Address, utils.FormatCoin(r.Balance, chain.ChainDenom))
		}
	} else {
		fmt.Fprintln(tw, "LABEL\tADDRESS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\n", r.Label, r.Address)
		}
	}
	return tw.Flush()
}

func (a *app) addAccount(label string, generate bool) error {
	var mnemonic string
	if generate {
		m, err := wallet.NewMnemonic()
		if err != nil {
			return err
		}
		mnemonic = m
	} else {
		m, err := a.readSecret("Mnemonic: ")
		if err != nil {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		mnemonic = m
	}

	if err := a.accounts.Add(models.Account{Label: label, Mnemonic: mnemonic}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added account %s\n", label)
	if generate {
		fmt.Fprintf(a.out, "Mnemonic (store it safely, it is not shown again):\n%s\n", mnemonic)
	}
	if chain, err := a.ws.ActiveChain(); err == nil {
		if addr, err := wallet.Derive(mnemonic, chain.AddressPrefix); err == nil {
			fmt.Fprintf(a.out, "Address on %s: %s\n", chain.ConfigName, addr)
		}
	}
	return nil
}

func (a *app) runContracts(args []string) error {
	cmd, rest := sub(args)
	switch cmd {
	case "list":
		return a.listContracts()
	case "add":
		if len(rest) != 3 {
			return errUsage
		}
		codeID, err := strconv.ParseInt(rest[2], 10, 64)
		if err != nil || codeID < 0 {
			return fmt.Errorf("invalid code id %q", rest[2])
		}
		c := models.Contract{Label: rest[0], ContractAddress: rest[1], CodeID: codeID}
		if chain, err := a.ws.ActiveChain(); err == nil {
			c.InitializedOn = chain.ChainID
		}
		if a.contracts.AddressExists(c.ContractAddress) {
			a.logger.Warnw("contract address already tracked under another label", "address", c.ContractAddress)
		}
		if err := a.contracts.Add(c); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added contract %s\n", c.Label)
		return nil
	case "delete", "rm":
		if len(rest) != 1 {
			return errUsage
		}
		if !a.contracts.LabelExists(rest[0]) {
			return fmt.Errorf("contract %q not found", rest[0])
		}
		if err := a.contracts.Delete(rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted contract %s\n", rest[0])
		return nil
	}
	return fmt.Errorf("unknown contracts command %q: %w", cmd, errUsage)
}

func (a *app) listContracts() error {
	contracts, err := a.contracts.List()
	if err != nil {
		return err
	}
	contracts = registry.Sort(contracts, a.ws.Settings().ContractSortOrder())
	if a.jsonOut {
		if contracts == nil {
			contracts = []models.Contract{}
		}
		return a.writeJSON(contracts)
	}
	if len(contracts) == 0 {
		fmt.Fprintln(a.out, "No contracts.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tCODE ID\tADDRESS\tCHAIN")
	for _, c := range contracts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Label, c.CodeID, utils.TruncateMiddle(c.ContractAddress, 24), c.InitializedOn)
	}
	return tw.Flush()
}

func (a *app) runChain(args []string) error {
	if len(args) == 0 {
		return a.showChain()
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "show":
		return a.showChain()
	case "list":
		return a.listChains()
	case "select", "use":
		if len(rest) != 1 {
			return errUsage
		}
		chain, err := a.ws.SelectChain(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Active chain: %s (%s)\n", chain.ConfigName, chain.ChainID)
		return nil
	}
	return fmt.Errorf("unknown chain command %q: %w", cmd, errUsage)
}

func (a *app) showChain() error {
	res, err := a.ws.Resolve()
	if err != nil {
		return err
	}
	if a.jsonOut {
		return a.writeJSON(res.Chain)
	}
	if res.Warning != nil {
		fmt.Fprintf(a.out, "Warning: %v\n", res.Warning)
	}
	c := res.Chain
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", c.ConfigName)
	fmt.Fprintf(tw, "Chain ID:\t%s\n", c.ChainID)
	fmt.Fprintf(tw, "Environment:\t%s\n", c.ChainEnvironment)
	fmt.Fprintf(tw, "Prefix:\t%s\n", c.AddressPrefix)
	fmt.Fprintf(tw, "RPC:\t%s\n", c.RPCEndpoint)
	fmt.Fprintf(tw, "Gas price:\t%s%s\n", c.DefaultGasPrice, c.ChainDenom)
	if c.FaucetEndpoint != "" {
		fmt.Fprintf(tw, "Faucet:\t%s\n", c.FaucetEndpoint)
	}
	if err := config.Validate(c); err != nil {
		fmt.Fprintf(tw, "Invalid:\t%v\n", err)
	}
	return tw.Flush()
}

func (a *app) listChains() error {
	chains := a.ws.Chains()
	if a.jsonOut {
		return a.writeJSON(chains)
	}
	res, _ := a.ws.Resolve()
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tCHAIN ID\tRPC")
	for _, c := range chains {
		marker := ""
		if c.ConfigName == res.Chain.ConfigName {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, c.ConfigName, c.ChainID, c.RPCEndpoint)
	}
	return tw.Flush()
}

func (a *app) faucet(ctx context.Context, label string) error {
	acc, ok, err := a.accounts.Get(ctx, label)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %q not found", label)
	}
	chain, err := a.ws.ActiveChain()
	if err != nil {
		return err
	}
	if err := a.client.RequestFunds(ctx, chain, acc.Address); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requested %s for %s (%s)\n", chain.ChainDenom, label, acc.Address)
	return nil
}

func (a *app) runHistory(args []string) error {
	cmd, _ := sub(args)
	switch cmd {
	case "list":
		entries, err := a.history.List()
		if err != nil {
			return err
		}
		if a.jsonOut {
			if entries == nil {
				entries = []models.HistoryEntry{}
			}
			return a.writeJSON(entries)
		}
		for _, e := range entries {
			fmt.Fprintf(a.out, "%s %-7s %s %s %s\n", e.RecordedAt.Format("2006-01-02 15:04:05"), e.Kind, e.ChainID, e.Label, string(e.Request))
		}
		return nil
	case "clear":
		return a.history.Clear()
	}
	return fmt.Errorf("unknown history command %q: %w", cmd, errUsage)
}

func (a *app) runConfig(args []string) error {
	if len(args) == 0 || args[0] == "path" {
		fmt.Fprintln(a.out, a.chains.Path())
		return nil
	}
	if args[0] != "restore" {
		return fmt.Errorf("unknown config command %q: %w", args[0], errUsage)
	}
	if err := config.RestoreLastBackup(a.chains.Path()); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Restored the most recent backup. Restart cwkit to load it.")
	return nil
}

func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readSecret reads one line from in without echo when in is a terminal.
func readSecret(in *os.File, prompt io.Writer, label string) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// testConfig checks every chain's structure and asks its RPC endpoint for the
// chain id.
func testConfig(ctx context.Context, path string, file config.File, client interface {
	FetchChainID(ctx context.Context, rpcEndpoint string) (string, error)
}) models.TestReport {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		ChainCount:     len(file.Chains),
	}

	res, err := config.ResolveActiveChain(file.Chains, file.SelectedChain)
	if err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, "No chains found in configuration.")
		return report
	}
	report.SelectedChain = res.Chain.ConfigName
	if res.Warning != nil {
		report.SelectionError = res.Warning.Error()
	}

	seen := make(map[string]bool)
	for _, chain := range file.Chains {
		result := models.ChainResult{
			Name:          chain.ConfigName,
			ConfigChainID: chain.ChainID,
			RPCEndpoint:   chain.RPCEndpoint,
		}
		key := strings.ToLower(strings.TrimSpace(chain.ConfigName))
		if key != "" && seen[key] {
			report.ValidStructure = false
			report.StructureErrors = append(report.StructureErrors, fmt.Sprintf("Duplicate chain name %q.", chain.ConfigName))
		}
		seen[key] = true

		if err := config.Validate(chain); err != nil {
			report.ValidStructure = false
			report.StructureErrors = append(report.StructureErrors, err.Error())
			result.Status = "invalid"
			result.Error = err.Error()
			report.Chains = append(report.Chains, result)
			continue
		}

		id, err := client.FetchChainID(ctx, chain.RPCEndpoint)
		switch {
		case err != nil:
			result.Status = "error"
			result.Error = err.Error()
		case id != strings.TrimSpace(chain.ChainID):
			result.Status = "mismatch"
			result.ObservedChainID = id
			result.Error = fmt.Sprintf("Mismatch! Expected %s", chain.ChainID)
		default:
			result.Status = "ok"
			result.ObservedChainID = id
		}
		report.Chains = append(report.Chains, result)
	}
	return report
}

func printReport(w io.Writer, report models.TestReport) {
	fmt.Fprintf(w, "Testing configuration at: %s\n", report.ConfigPath)
	for _, msg := range report.StructureErrors {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	if report.ChainCount == 0 {
		return
	}
	fmt.Fprintf(w, "Found %d chains, active: %s\n", report.ChainCount, report.SelectedChain)
	if report.SelectionError != "" {
		fmt.Fprintf(w, "Warning: %s\n", report.SelectionError)
	}
	for _, c := range report.Chains {
		fmt.Fprintf(w, "  %s (%s) ... ", c.Name, c.RPCEndpoint)
		switch c.Status {
		case "ok":
			fmt.Fprintf(w, "OK (ChainID: %s) - Verified\n", c.ObservedChainID)
		case "mismatch":
			fmt.Fprintf(w, "OK (ChainID: %s) - MISMATCH! Expected %s\n", c.ObservedChainID, c.ConfigChainID)
		default:
			fmt.Fprintf(w, "Failed: %s\n", c.Error)
		}
	}
}
