package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Slots is a string-keyed durable key-value area.
type Slots interface {
	// Get returns the value stored under key; ok is false when the slot is empty.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// FileSlots stores each slot as <Dir>/<key>.json.
type FileSlots struct {
	Dir string
}

// Get implements Slots.
func (f FileSlots) Get(key string) (string, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements Slots. The write is atomic: readers see the old or the new value.
func (f FileSlots) Set(key, value string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create slot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp slot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close slot %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace slot %s: %w", key, err)
	}
	return nil
}

func (f FileSlots) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid slot key %q", key)
	}
	if strings.TrimSpace(f.Dir) == "" {
		return "", fmt.Errorf("slot dir is empty")
	}
	return filepath.Join(f.Dir, key+".json"), nil
}

// MemorySlots keeps slots in memory. The zero value is ready to use.
type MemorySlots struct {
	mu     sync.Mutex
	values map[string]string
	// FailWrites makes Set return an error, for exercising write-back failures.
	FailWrites bool
}

// Get implements Slots.
func (m *MemorySlots) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Slots.
func (m *MemorySlots) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return fmt.Errorf("slot %s is read-only", key)
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}
