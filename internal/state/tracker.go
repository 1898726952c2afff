// Package state tracks which message UIDs have been delivered so a
// mailbox is never drained twice, even when messages are kept on the
// server.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Tracker persists the set of delivered message UIDs per account.
type Tracker struct {
	mu       sync.Mutex
	filePath string
	data     fileData
}

// fileData is the on-disk layout, keyed by account label.
type fileData struct {
	Accounts map[string]*accountState `json:"accounts"`
}

type accountState struct {
	DeliveredUIDs map[string]bool `json:"delivered_uids"`
}

// NewTracker creates a Tracker, loading existing state from disk if
// available. A missing or corrupted state file starts fresh.
func NewTracker(filePath string) (*Tracker, error) {
	t := &Tracker{
		filePath: filePath,
		data: fileData{
			Accounts: make(map[string]*accountState),
		},
	}

	if err := t.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading state from %s: %w", filePath, err)
		}
	}

	return t, nil
}

// IsDelivered reports whether the given UID was already delivered for the
// given account.
func (t *Tracker) IsDelivered(account, uid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	as, ok := t.data.Accounts[account]
	if !ok {
		return false
	}
	return as.DeliveredUIDs[uid]
}

// MarkDelivered records the UID as delivered and persists to disk.
func (t *Tracker) MarkDelivered(account, uid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.account(account).DeliveredUIDs[uid] = true
	return t.save()
}

// Prune drops every recorded UID for the account that is not in current,
// then persists. The server forgot those messages, so keeping them only
// grows the state file.
func (t *Tracker) Prune(account string, current map[string]bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	as, ok := t.data.Accounts[account]
	if !ok {
		return nil
	}
	for uid := range as.DeliveredUIDs {
		if !current[uid] {
			delete(as.DeliveredUIDs, uid)
		}
	}
	return t.save()
}

// Stats returns the number of tracked UIDs per account.
func (t *Tracker) Stats() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make(map[string]int)
	for k, v := range t.data.Accounts {
		stats[k] = len(v.DeliveredUIDs)
	}
	return stats
}

// account returns the state for the given account, creating it if needed.
// Callers must hold t.mu.
func (t *Tracker) account(name string) *accountState {
	as, ok := t.data.Accounts[name]
	if !ok {
		as = &accountState{DeliveredUIDs: make(map[string]bool)}
		t.data.Accounts[name] = as
	}
	return as
}

// load reads the state from disk.
func (t *Tracker) load() error {
	data, err := os.ReadFile(t.filePath)
	if err != nil {
		return err
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		// A corrupted state file means refetching at worst; start fresh.
		return nil
	}

	if fd.Accounts != nil {
		t.data = fd
	}
	return nil
}

// save writes the state to disk atomically using a temp file + rename.
func (t *Tracker) save() error {
	dir := filepath.Dir(t.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmpFile := t.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}

	if err := os.Rename(tmpFile, t.filePath); err != nil {
		return fmt.Errorf("renaming state file: %w", err)
	}

	return nil
}
