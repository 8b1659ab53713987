package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Diagnostics is the last-known operational state for one chat, kept in
// memory for the /diag surface.
type Diagnostics struct {
	HasSession         bool
	LastOpID           string
	LastError          string
	LastFetchAt        *time.Time
	CurrentURL         string
	MethodPicked       string
	MoreDetailsVisible *bool
}

type diagStore struct {
	mu      sync.RWMutex
	entries map[string]*Diagnostics
}

func newDiagStore() *diagStore {
	return &diagStore{entries: make(map[string]*Diagnostics)}
}

// update applies a mutation under the write lock, creating the entry when
// needed, and stamps a fresh operation id.
func (d *diagStore) update(chatID string, fn func(*Diagnostics)) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[chatID]
	if !ok {
		e = &Diagnostics{}
		d.entries[chatID] = e
	}
	opID := uuid.NewString()
	e.LastOpID = opID
	fn(e)
	return opID
}

func (d *diagStore) get(chatID string) Diagnostics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e, ok := d.entries[chatID]; ok {
		return *e
	}
	return Diagnostics{}
}

func (d *diagStore) drop(chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, chatID)
}
