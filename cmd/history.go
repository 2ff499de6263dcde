package cmd

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxHistoryEntries = 500

// historyEntry is one line of the input history JSONL file.
type historyEntry struct {
	Text string    `json:"text"`
	Ts   time.Time `json:"ts"`
}

// HistoryManager persists the chat input history under the state root so
// up/down recall survives restarts.
type HistoryManager struct {
	path string
	mu   sync.Mutex
}

func NewHistoryManager(stateRoot string) (*HistoryManager, error) {
	dir := filepath.Join(stateRoot, "history")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &HistoryManager{path: filepath.Join(dir, "input.jsonl")}, nil
}

// Load returns the stored inputs, oldest first, capped at
// maxHistoryEntries most recent.
func (h *HistoryManager) Load() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e historyEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // skip corrupt lines
		}
		if e.Text != "" {
			entries = append(entries, e.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	return entries, nil
}

// Append records one input line.
func (h *HistoryManager) Append(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(historyEntry{Text: text, Ts: time.Now()})
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
