package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultProfile = "default"

// Profile is one named set of connection settings.
type Profile struct {
	Host   string `yaml:"host,omitempty" json:"host,omitempty"`
	Token  string `yaml:"token,omitempty" json:"token,omitempty"`
	Tenant string `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// Profiles is the CLI configuration file. DQ_CONFIG overrides its location.
type Profiles struct {
	Current string             `yaml:"current" json:"current"`
	Entries map[string]Profile `yaml:"profiles" json:"profiles"`
}

// Resolve returns the named profile, or the current one when name is empty.
// Unknown names resolve to the zero profile.
func (p *Profiles) Resolve(name string) Profile {
	if name == "" {
		name = p.Current
	}
	return p.Entries[name]
}

// Update applies fn to the named profile, creating it when absent.
func (p *Profiles) Update(name string, fn func(*Profile)) {
	entry := p.Entries[name]
	fn(&entry)
	p.Entries[name] = entry
	if p.Current == "" {
		p.Current = name
	}
}

func profilesPath() string {
	if v := os.Getenv("DQ_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".dynaquery", "config.yaml")
	}
	return filepath.Join(home, ".dynaquery", "config.yaml")
}

// loadProfiles reads the configuration file. A missing file is an empty
// configuration.
func loadProfiles() (*Profiles, error) {
	p := &Profiles{Entries: map[string]Profile{}}
	data, err := os.ReadFile(profilesPath())
	if errors.Is(err, fs.ErrNotExist) {
		p.Current = defaultProfile
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", profilesPath(), err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", profilesPath(), err)
	}
	if p.Entries == nil {
		p.Entries = map[string]Profile{}
	}
	return p, nil
}

// save replaces the file atomically with mode 0600.
func (p *Profiles) save() error {
	path := profilesPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
