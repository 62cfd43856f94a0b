package registry

import (
	"time"

	"cwkit/pkg/config"
	"cwkit/pkg/models"
	"cwkit/pkg/store"
)

// SettingsSource supplies the current preferences.
type SettingsSource interface {
	Settings() config.Settings
}

// HistoryRegistry keeps the most recent contract requests, capped by the
// historyStored setting.
type HistoryRegistry struct {
	list     *list[models.HistoryEntry]
	settings SettingsSource
	now      func() time.Time
}

func NewHistoryRegistry(s store.Store, settings SettingsSource) *HistoryRegistry {
	return &HistoryRegistry{
		list: &list[models.HistoryEntry]{
			store:   s,
			key:     store.KeyHistory,
			labelOf: func(e models.HistoryEntry) string { return e.Label },
		},
		settings: settings,
		now:      time.Now,
	}
}

// Record appends entry and drops the oldest entries beyond the limit. With a
// limit of 0 history is disabled and any stored entries are cleared.
func (h *HistoryRegistry) Record(entry models.HistoryEntry) error {
	limit := h.settings.Settings().HistoryStored()
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = h.now().UTC()
	}

	h.list.mu.Lock()
	defer h.list.mu.Unlock()
	items, err := h.list.load()
	if err != nil {
		return err
	}
	if limit == 0 {
		if len(items) == 0 {
			return nil
		}
		return h.list.save(nil)
	}
	items = append(items, entry)
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return h.list.save(items)
}

// List returns the stored entries, oldest first.
func (h *HistoryRegistry) List() ([]models.HistoryEntry, error) {
	return h.list.all()
}

func (h *HistoryRegistry) Clear() error {
	h.list.mu.Lock()
	defer h.list.mu.Unlock()
	return h.list.save(nil)
}
