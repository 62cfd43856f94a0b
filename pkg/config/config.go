package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const ConfigFileName = ".cwkit.json"

// ChainConfig describes one configured network.
type ChainConfig struct {
	ConfigName          string `json:"configName" toml:"configName"`
	ChainID             string `json:"chainId" toml:"chainId"`
	ChainEnvironment    string `json:"chainEnvironment" toml:"chainEnvironment"`
	AddressPrefix       string `json:"addressPrefix" toml:"addressPrefix"`
	RPCEndpoint         string `json:"rpcEndpoint" toml:"rpcEndpoint"`
	DefaultGasPrice     string `json:"defaultGasPrice" toml:"defaultGasPrice"`
	ChainDenom          string `json:"chainDenom" toml:"chainDenom"`
	FaucetEndpoint      string `json:"faucetEndpoint,omitempty" toml:"faucetEndpoint,omitempty"`
	AccountExplorerLink string `json:"accountExplorerLink,omitempty" toml:"accountExplorerLink,omitempty"`
}

// AccountExplorerURL fills the {accountAddress} placeholder of the explorer link.
// It returns "" when the chain has no explorer configured.
func (c ChainConfig) AccountExplorerURL(address string) string {
	link := strings.TrimSpace(c.AccountExplorerLink)
	if link == "" {
		return ""
	}
	if strings.Contains(link, "{accountAddress}") {
		return strings.ReplaceAll(link, "{accountAddress}", address)
	}
	return strings.TrimRight(link, "/") + "/" + address
}

// File is the on-disk configuration document.
type File struct {
	Chains        []ChainConfig `json:"chains" toml:"chains"`
	SelectedChain string        `json:"selectedChain,omitempty" toml:"selectedChain,omitempty"`
	DataDir       string        `json:"dataDir,omitempty" toml:"dataDir,omitempty"`
	Settings      Settings      `json:"-" toml:"-"`
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// DefaultDataDir is where the account and contract lists live unless the
// config file says otherwise.
func DefaultDataDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".cwkit")
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfigFromFile reads the config at path. A missing file yields an empty
// configuration, not an error: chain-dependent operations report
// ErrConfigurationMissing later.
func LoadConfigFromFile(path string) (File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return File{}, nil
	}
	if err != nil {
		return File{}, err
	}
	defer func() { _ = f.Close() }()
	if isTOML(path) {
		return LoadTOMLConfig(f)
	}
	return LoadConfig(f)
}

type jsonDocument struct {
	Chains            []ChainConfig   `json:"chains"`
	SelectedChain     string          `json:"selectedChain"`
	DataDir           string          `json:"dataDir"`
	ContractSortOrder json.RawMessage `json:"contractSortOrder"`
	ResponseView      json.RawMessage `json:"responseView"`
	HistoryStored     json.RawMessage `json:"historyStored"`
}

// LoadConfig decodes a JSON config document. Settings values are kept raw so a
// bad value degrades to its default instead of failing the whole load.
func LoadConfig(r io.Reader) (File, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return File{}, err
	}
	return File{
		Chains:        doc.Chains,
		SelectedChain: doc.SelectedChain,
		DataDir:       doc.DataDir,
		Settings: Settings{
			RawSortOrder:     rawString(doc.ContractSortOrder),
			RawResponseView:  rawString(doc.ResponseView),
			RawHistoryStored: rawNumber(doc.HistoryStored),
		},
	}, nil
}

// LoadTOMLConfig decodes the TOML flavour of the config document.
func LoadTOMLConfig(r io.Reader) (File, error) {
	var doc struct {
		Chains            []ChainConfig `toml:"chains"`
		SelectedChain     string        `toml:"selectedChain"`
		DataDir           string        `toml:"dataDir"`
		ContractSortOrder interface{}   `toml:"contractSortOrder"`
		ResponseView      interface{}   `toml:"responseView"`
		HistoryStored     interface{}   `toml:"historyStored"`
	}
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return File{}, err
	}
	return File{
		Chains:        doc.Chains,
		SelectedChain: doc.SelectedChain,
		DataDir:       doc.DataDir,
		Settings: Settings{
			RawSortOrder:     primitiveString(doc.ContractSortOrder),
			RawResponseView:  primitiveString(doc.ResponseView),
			RawHistoryStored: primitiveString(doc.HistoryStored),
		},
	}, nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func rawNumber(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		// Numbers written as strings ("5") are still accepted.
		return rawString(raw)
	}
	return n.String()
}

func primitiveString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return ""
	}
}

// SaveConfig validates the document and writes it atomically, keeping a
// timestamped backup of the previous file.
func SaveConfig(cfg File, path string) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("validation failed: %w", ErrConfigurationMissing)
	}
	seen := make(map[string]bool, len(cfg.Chains))
	for i, c := range cfg.Chains {
		name := strings.ToLower(strings.TrimSpace(c.ConfigName))
		if name == "" {
			return fmt.Errorf("validation failed: chain at index %d has no configName", i)
		}
		if seen[name] {
			return fmt.Errorf("validation failed: duplicate chain configName %q", c.ConfigName)
		}
		seen[name] = true
	}

	data, err := encodeConfig(cfg, path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func encodeConfig(cfg File, path string) ([]byte, error) {
	doc := map[string]interface{}{
		"chains": cfg.Chains,
	}
	if cfg.SelectedChain != "" {
		doc["selectedChain"] = cfg.SelectedChain
	}
	if cfg.DataDir != "" {
		doc["dataDir"] = cfg.DataDir
	}
	if cfg.Settings.RawSortOrder != "" {
		doc["contractSortOrder"] = cfg.Settings.RawSortOrder
	}
	if cfg.Settings.RawResponseView != "" {
		doc["responseView"] = cfg.Settings.RawResponseView
	}
	if cfg.Settings.RawHistoryStored != "" {
		doc["historyStored"] = cfg.Settings.HistoryStored()
	}

	if isTOML(path) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(doc); err != nil {
			return nil, err
		}
		return []byte(sb.String()), nil
	}
	return json.MarshalIndent(doc, "", "  ")
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}
