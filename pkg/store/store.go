// Package store is the durable key-value storage behind the registries.
package store

import (
	"fmt"
	"os"

	dbm "github.com/cometbft/cometbft-db"
)

// Logical keys used by the registries.
const (
	KeyAccounts  = "accounts"
	KeyContracts = "contracts"
	KeyHistory   = "history"
)

// Store is the minimal key-value contract the registries depend on. Get
// returns nil, nil for an absent key.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// DB adapts a cometbft-db database to Store.
type DB struct {
	db dbm.DB
}

// Open opens (or creates) the goleveldb database named "cwkit" in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	db, err := dbm.NewDB("cwkit", dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("open store in %s: %w", dir, err)
	}
	return &DB{db: db}, nil
}

// NewMemory returns an in-memory store, used by tests and dry runs.
func NewMemory() *DB {
	return &DB{db: dbm.NewMemDB()}
}

func (d *DB) Get(key string) ([]byte, error) {
	v, err := d.db.Get([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

// Set writes value synchronously so a crash right after a mutation does not
// lose it.
func (d *DB) Set(key string, value []byte) error {
	if err := d.db.SetSync([]byte(key), value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
