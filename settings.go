package chatclient

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// settingsModule is the settings key the client keeps its state under.
const settingsModule = "totem_chat-client"

// SettingsStore persists one JSON object per named module.
type SettingsStore interface {
	// Get returns the module's object, or an empty map if none was stored.
	Get(module string) (map[string]any, error)
	// Set stores value for module. With override the stored object is
	// replaced; otherwise value's top-level keys are merged into it.
	Set(module string, value map[string]any, override bool) error
	Close() error
}

// User is the account record kept in the settings store.
type User struct {
	ID      string   `json:"id"`
	Secret  string   `json:"secret"`
	Address string   `json:"address"`
	Roles   []string `json:"roles,omitempty"`
}

// Valid reports whether u carries enough to log in.
func (u *User) Valid() bool {
	return u != nil && u.ID != "" && u.Secret != ""
}

// ============================================================================
// MemoryStore
// ============================================================================

// MemoryStore is a goroutine-safe in-memory SettingsStore.
type MemoryStore struct {
	mu      sync.RWMutex
	modules map[string]map[string]any
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{modules: make(map[string]map[string]any)}
}

func (s *MemoryStore) Get(module string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := maps.Clone(s.modules[module])
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func (s *MemoryStore) Set(module string, value map[string]any, override bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[module] = mergeSettings(s.modules[module], value, override)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func mergeSettings(old, value map[string]any, override bool) map[string]any {
	if override || old == nil {
		out := maps.Clone(value)
		if out == nil {
			out = map[string]any{}
		}
		return out
	}
	out := maps.Clone(old)
	maps.Copy(out, value)
	return out
}

// ============================================================================
// Client records
// ============================================================================

// settings reads and writes the client's own module.
type settings struct {
	store SettingsStore
}

func (s settings) user() (*User, error) {
	m, err := s.store.Get(settingsModule)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	raw, ok := m["user"]
	if !ok || raw == nil {
		return nil, nil
	}
	var u User
	if err := remarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode stored user: %w", err)
	}
	return &u, nil
}

func (s settings) setUser(u User) error {
	var m map[string]any
	if err := remarshal(u, &m); err != nil {
		return err
	}
	if err := s.store.Set(settingsModule, map[string]any{"user": m}, false); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (s settings) referralCode() (string, error) {
	m, err := s.store.Get(settingsModule)
	if err != nil {
		return "", fmt.Errorf("read settings: %w", err)
	}
	code, _ := m["referralCode"].(string)
	return code, nil
}

func (s settings) setReferralCode(code string) error {
	var v any = code
	if code == "" {
		v = nil
	}
	if err := s.store.Set(settingsModule, map[string]any{"referralCode": v}, false); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// remarshal converts v into out through JSON.
func remarshal(v, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
