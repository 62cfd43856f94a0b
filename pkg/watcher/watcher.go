package watcher

import (
	"context"
	"sync"
	"time"

	"cwkit/pkg/models"
	"cwkit/pkg/store"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var DefaultInterval = 30 * time.Second

// AccountSource defines the interface for fetching enriched accounts.
type AccountSource interface {
	List(ctx context.Context, active bool) ([]models.Account, error)
}

// Watcher refreshes account balances in the background and fans registry and
// refresh events out to subscribers.
type Watcher struct {
	source   AccountSource
	interval time.Duration
	logger   *zap.SugaredLogger

	accounts    []models.Account
	subscribers []Subscriber
	mu          sync.RWMutex
	running     atomic.Bool
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWatcher creates a new Watcher. A non-positive interval means DefaultInterval.
func NewWatcher(source AccountSource, interval time.Duration, logger *zap.SugaredLogger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Watcher{
		source:   source,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Notify sends event to every subscriber without blocking; a full
// subscriber misses the event.
func (w *Watcher) Notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			w.logger.Debugw("dropping event for slow subscriber", "type", event.Type)
		}
	}
}

// Changed is a registry.ChangeFunc: it maps a store key to its event.
func (w *Watcher) Changed(key string) {
	switch key {
	case store.KeyAccounts:
		w.Notify(Event{Type: EventAccountsChanged})
	case store.KeyContracts:
		w.Notify(Event{Type: EventContractsChanged})
	case store.KeyHistory:
		w.Notify(Event{Type: EventHistoryChanged})
	}
}

// Start begins the refresh loop. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.pollingLoop(ctx)
}

// Stop stops the refresh loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) Running() bool {
	return w.running.Load()
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	defer w.running.Store(false)

	w.Refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Refresh(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh runs one enrichment pass and publishes the result.
func (w *Watcher) Refresh(ctx context.Context) {
	accounts, err := w.source.List(ctx, true)
	if err != nil {
		w.logger.Warnw("account refresh failed", "error", err)
		w.Notify(Event{Type: EventError, Data: err.Error()})
		return
	}
	w.mu.Lock()
	w.accounts = accounts
	w.mu.Unlock()
	w.Notify(Event{Type: EventAccountsUpdated, Data: accounts})
}

// GetAccounts returns a copy of the accounts from the last refresh.
func (w *Watcher) GetAccounts() []models.Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]models.Account(nil), w.accounts...)
}
