package store

import "encoding/json"

// MemoryStore is a map-backed KV used by tests and as the fallback when the
// file store cannot be opened. Values saved here do not survive restarts.
type MemoryStore struct {
	data map[string]string
}

// NewMemory creates an empty in-memory settings store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string, out any) bool {
	v, ok := m.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(v), out) == nil
}

func (m *MemoryStore) Set(key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	m.data[key] = string(data)
	return true
}

func (m *MemoryStore) GetRaw(key, def string) string {
	if v, ok := m.data[key]; ok {
		return v
	}
	return def
}

func (m *MemoryStore) SetRaw(key, val string) bool {
	m.data[key] = val
	return true
}

func (m *MemoryStore) Remove(key string) bool {
	delete(m.data, key)
	return true
}

func (m *MemoryStore) Has(key string) bool {
	_, ok := m.data[key]
	return ok
}
