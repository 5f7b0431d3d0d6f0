package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Tree used by tests and as a no-dependency
// fallback. Values round-trip through JSON so lookups behave like the
// remote backends.
type Memory struct {
	mu   sync.RWMutex
	root map[string]interface{}
}

func NewMemory() *Memory {
	return &Memory{root: make(map[string]interface{})}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// normalize converts value into the generic JSON shape (maps, slices,
// float64, string, bool).
func normalize(value interface{}) (interface{}, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) lookup(path string) (interface{}, bool) {
	var node interface{} = m.root
	for _, seg := range splitPath(path) {
		child, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = child[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func (m *Memory) Get(ctx context.Context, path string, out interface{}) error {
	m.mu.RLock()
	node, ok := m.lookup(path)
	m.mu.RUnlock()
	if !ok || node == nil {
		return ErrNotFound
	}

	raw, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("memory get %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("memory decode %s: %w", path, err)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, path string, value interface{}) error {
	norm, err := normalize(value)
	if err != nil {
		return fmt.Errorf("memory set %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(path, norm)
}

func (m *Memory) setLocked(path string, norm interface{}) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		root, ok := norm.(map[string]interface{})
		if !ok {
			return fmt.Errorf("memory set: root value must be an object")
		}
		m.root = root
		return nil
	}

	node := m.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = norm
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range fields {
		norm, err := normalize(value)
		if err != nil {
			return fmt.Errorf("memory update %s: %w", path, err)
		}
		if err := m.setLocked(path+"/"+key, norm); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Push(ctx context.Context, path string, value interface{}) (string, error) {
	key := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := m.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	segs := splitPath(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(segs) == 0 {
		m.root = make(map[string]interface{})
		return nil
	}

	node := m.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			return nil
		}
		node = child
	}
	delete(node, segs[len(segs)-1])
	return nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.lookup(path)
	return ok && node != nil, nil
}
