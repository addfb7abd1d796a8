package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EnvProfiles persists named sets of environment variables (spec §6) at a
// single JSON file, using the same write-temp-then-rename idiom as
// internal/statestore.Store.
type EnvProfiles struct {
	path string
	mu   sync.Mutex
}

// NewEnvProfiles creates a profile store rooted at path.
func NewEnvProfiles(path string) *EnvProfiles {
	return &EnvProfiles{path: path}
}

func (p *EnvProfiles) load() (map[string]map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]map[string]string), nil
		}
		return nil, fmt.Errorf("env profiles: read: %w", err)
	}
	profiles := make(map[string]map[string]string)
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("env profiles: decode: %w", err)
	}
	return profiles, nil
}

func (p *EnvProfiles) save(profiles map[string]map[string]string) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("env profiles: encode: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("env profiles: create data dir: %w", err)
	}
	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("env profiles: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("env profiles: rename temp file: %w", err)
	}
	return nil
}

// List returns every saved profile name mapped to its variables.
func (p *EnvProfiles) List() (map[string]map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

// Get returns the variables for name, and whether it exists.
func (p *EnvProfiles) Get(name string) (map[string]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profiles, err := p.load()
	if err != nil {
		return nil, false, err
	}
	vars, ok := profiles[name]
	return vars, ok, nil
}

// Put creates or replaces the profile named name.
func (p *EnvProfiles) Put(name string, vars map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	profiles, err := p.load()
	if err != nil {
		return err
	}
	profiles[name] = vars
	return p.save(profiles)
}

// Delete removes the profile named name, if present.
func (p *EnvProfiles) Delete(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	profiles, err := p.load()
	if err != nil {
		return err
	}
	delete(profiles, name)
	return p.save(profiles)
}
