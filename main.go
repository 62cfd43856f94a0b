package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cwkit/pkg/config"
	"cwkit/pkg/logging"
	"cwkit/pkg/registry"
	"cwkit/pkg/rpc"
	"cwkit/pkg/server"
	"cwkit/pkg/store"
	"cwkit/pkg/watcher"
	"cwkit/pkg/workspace"

	"go.uber.org/zap"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file")
	dataFlag := flag.String("data", "", "Directory holding the account and contract store")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	intervalFlag := flag.Duration("interval", watcher.DefaultInterval, "Balance refresh interval in server mode")
	workersFlag := flag.Int("workers", registry.DefaultWorkers, "Concurrent balance fetches")
	logLevelFlag := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("cwkit version %s\n", Version)
		os.Exit(0)
	}

	logger, err := logging.New(*logLevelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	path, err := config.GetConfigPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error determining config path: %v\n", err)
		os.Exit(1)
	}

	file, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := rpc.NewClient(logger)

	if *testFlag || *testLongFlag {
		report := testConfig(ctx, path, file, client)
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			printReport(os.Stdout, report)
		}
		if !report.OK() {
			os.Exit(1)
		}
		os.Exit(0)
	}

	dataDir := *dataFlag
	if dataDir == "" {
		dataDir = file.DataDir
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir(path)
	}
	db, err := store.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	chains := config.NewStore(file, path, logger)
	chains.ReportInvalid()

	a := newApp(chains, db, client, logger, *workersFlag, *intervalFlag)
	a.jsonOut = *jsonFlag

	if *serverFlag {
		if _, err := a.ws.ActiveChain(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Please create a config file at %s with 'chains'.\n", path)
			os.Exit(1)
		}
		a.watcher.Start(ctx)
		defer a.watcher.Stop()

		srv := server.NewServer(server.Deps{
			Workspace: a.ws,
			Accounts:  a.accounts,
			Contracts: a.contracts,
			History:   a.history,
			Watcher:   a.watcher,
			Faucet:    client,
			Logger:    logger,
		})
		fmt.Printf("Running in server mode on port %d...\n", *portFlag)
		if err := srv.Start(ctx, fmt.Sprintf(":%d", *portFlag)); err != nil {
			logger.Errorw("server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := a.run(runCtx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp wires the registries, the workspace and the watcher around one store.
func newApp(chains *config.Store, db store.Store, client chainClient, logger *zap.SugaredLogger, workers int, interval time.Duration) *app {
	ws := workspace.New(chains, logger)
	a := &app{
		chains: chains,
		ws:     ws,
		client: client,
		logger: logger,
		out:    os.Stdout,
		readSecret: func(prompt string) (string, error) {
			return readSecret(os.Stdin, os.Stderr, prompt)
		},
	}
	a.accounts = registry.NewAccountRegistry(db, ws, client,
		registry.WithWorkers(workers),
		registry.WithAccountLogger(logger),
		registry.WithAccountChange(func(key string) { a.watcher.Changed(key) }),
	)
	a.watcher = watcher.NewWatcher(a.accounts, interval, logger)
	a.contracts = registry.NewContractRegistry(db, a.watcher.Changed, registry.WithContractLogger(logger))
	a.history = registry.NewHistoryRegistry(db, ws)
	return a
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, `Usage: cwkit [flags] <command>

Commands:
  accounts [list]                  list accounts with their addresses
  accounts balances                list accounts with balances on the active chain
  accounts add <label> [--generate] add an account (mnemonic read from stdin)
  accounts delete <label>          delete an account
  contracts [list]                 list tracked contracts
  contracts add <label> <address> <codeId>
  contracts delete <label>
  chain [show]                     show the active chain
  chain list                       list configured chains
  chain select <name>              make <name> the active chain
  faucet <label>                   request test tokens for an account
  history [list|clear]
  config [path|restore]            show the config path or restore the last backup

Flags:
`)
	flag.PrintDefaults()
}
