// Package registry keeps the persisted account, contract and history lists.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cwkit/pkg/store"
)

var (
	ErrDuplicateLabel = errors.New("label already exists")
	ErrEmptyLabel     = errors.New("label is empty")
)

// ChangeFunc is called after a successful mutation with the store key that
// changed.
type ChangeFunc func(key string)

// list is an ordered, label-keyed record list stored as one JSON array under
// key. All access goes through mu so read-modify-write cycles never
// interleave.
type list[T any] struct {
	mu       sync.Mutex
	store    store.Store
	key      string
	labelOf  func(T) string
	onChange ChangeFunc
}

func (l *list[T]) load() ([]T, error) {
	raw, err := l.store.Get(l.key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.key, err)
	}
	return items, nil
}

func (l *list[T]) save(items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.key, err)
	}
	if err := l.store.Set(l.key, raw); err != nil {
		return err
	}
	if l.onChange != nil {
		l.onChange(l.key)
	}
	return nil
}

func (l *list[T]) all() ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *list[T]) add(item T) error {
	label := l.labelOf(item)
	if strings.TrimSpace(label) == "" {
		return ErrEmptyLabel
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.load()
	if err != nil {
		return err
	}
	for _, it := range items {
		if l.labelOf(it) == label {
			return fmt.Errorf("%s %q: %w", strings.TrimSuffix(l.key, "s"), label, ErrDuplicateLabel)
		}
	}
	return l.save(append(items, item))
}

// remove drops every item with the given label. Removing an absent label
// writes nothing.
func (l *list[T]) remove(label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.load()
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, it := range items {
		if l.labelOf(it) != label {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return nil
	}
	return l.save(kept)
}

func (l *list[T]) exists(match func(T) bool) (bool, error) {
	items, err := l.all()
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if match(it) {
			return true, nil
		}
	}
	return false, nil
}
