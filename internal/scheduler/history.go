package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ExecutionRecord captures one scheduled run for an hour slot.
type ExecutionRecord struct {
	Timestamp     int64    `json:"timestamp"`
	StrategiesRun []string `json:"strategies_run"`
	TokensFound   int      `json:"tokens_found"`
}

// HistoryStore persists execution records so a restart cannot re-run an hour
// slot that already executed.
type HistoryStore interface {
	// Has reports whether the slot already has a record.
	Has(slot string) (bool, error)
	// Record stores the record for slot. At most one record per slot; a
	// second Record for the same slot overwrites.
	Record(slot string, rec ExecutionRecord) error
	// Prune removes records older than cutoff and returns how many were
	// dropped.
	Prune(cutoff time.Time) (int, error)
	// SetLastCheck persists the debounce timestamp.
	SetLastCheck(t time.Time) error
}

// slotKeyFormat is the layout behind "<date>_<hour>" slot keys. Prior runs
// persisted this exact format, so it must not change.
const slotKeyFormat = "2006-01-02_15"

// SlotKey returns the execution-history key for the UTC hour containing now.
func SlotKey(now time.Time) string {
	return now.UTC().Format(slotKeyFormat)
}

type historyDoc struct {
	Executions    map[string]ExecutionRecord `json:"executions"`
	LastCheckTime int64                      `json:"last_check_time"`
}

// FileHistory is the default HistoryStore: one JSON document, rewritten
// atomically (write temp file, rename) after every change.
type FileHistory struct {
	mu   sync.Mutex
	path string
	doc  historyDoc
}

// NewFileHistory loads (or initializes) the history document at path.
func NewFileHistory(path string) (*FileHistory, error) {
	h := &FileHistory{
		path: path,
		doc:  historyDoc{Executions: make(map[string]ExecutionRecord)},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, fmt.Errorf("failed to read execution history: %w", err)
	}
	if err := json.Unmarshal(data, &h.doc); err != nil {
		return nil, fmt.Errorf("failed to parse execution history: %w", err)
	}
	if h.doc.Executions == nil {
		h.doc.Executions = make(map[string]ExecutionRecord)
	}
	return h, nil
}

// Has reports whether slot already ran.
func (h *FileHistory) Has(slot string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.doc.Executions[slot]
	return ok, nil
}

// Record stores rec under slot and flushes the document.
func (h *FileHistory) Record(slot string, rec ExecutionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc.Executions[slot] = rec
	return h.flushLocked()
}

// Prune drops records with timestamps before cutoff.
func (h *FileHistory) Prune(cutoff time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for slot, rec := range h.doc.Executions {
		if time.Unix(rec.Timestamp, 0).Before(cutoff) {
			delete(h.doc.Executions, slot)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, h.flushLocked()
}

// SetLastCheck persists the debounce timestamp.
func (h *FileHistory) SetLastCheck(t time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc.LastCheckTime = t.Unix()
	return h.flushLocked()
}

// flushLocked rewrites the whole document atomically. Caller holds mu.
func (h *FileHistory) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(&h.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution history: %w", err)
	}

	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution history: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return fmt.Errorf("failed to replace execution history: %w", err)
	}
	return nil
}
