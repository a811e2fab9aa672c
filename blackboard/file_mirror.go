package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/agentree/core"
)

// FileMirror appends notes as JSON lines to a file.
type FileMirror struct {
	mu   sync.Mutex
	path string
}

var _ Mirror = (*FileMirror)(nil)

// NewFileMirror creates a mirror writing to path. The file is created lazily.
func NewFileMirror(path string) *FileMirror {
	return &FileMirror{path: path}
}

// Append writes note as one JSON line.
func (m *FileMirror) Append(note core.Note) error {
	line, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode note: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open note log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write note log: %w", err)
	}

	return nil
}

// Truncate empties the file, creating it if needed.
func (m *FileMirror) Truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("truncate note log: %w", err)
	}

	return f.Close()
}

// Path returns the mirrored file path.
func (m *FileMirror) Path() string { return m.path }
