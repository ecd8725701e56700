package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// RemotesConfig is the on-disk list of named server profiles.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is one server profile. Any field left empty falls back to flags,
// environment or built-in defaults.
type Remote struct {
	URL         string `toml:"url"`
	GRPCAddr    string `toml:"grpc_addr,omitempty"`
	Token       string `toml:"token,omitempty"`
	Keypair     string `toml:"keypair,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
	Description string `toml:"description,omitempty"`
}

func errUnknownRemote(name string) error { return fmt.Errorf("remote %q not found", name) }

// Names returns the remote names in sorted order.
func (c *RemotesConfig) Names() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves name, or the active remote when name is empty.
func (c *RemotesConfig) Lookup(name string) (string, Remote, error) {
	if name == "" {
		name = c.Active
	}
	if name == "" {
		return "", Remote{}, errors.New("no active remote; specify a name or run 'vest remote use <name>'")
	}
	r, ok := c.Remotes[name]
	if !ok {
		return "", Remote{}, errUnknownRemote(name)
	}
	return name, r, nil
}

// Use makes name the active remote. An empty name clears it.
func (c *RemotesConfig) Use(name string) error {
	if name != "" {
		if _, ok := c.Remotes[name]; !ok {
			return errUnknownRemote(name)
		}
	}
	c.Active = name
	return nil
}

// Remove deletes name and clears it if it was active.
func (c *RemotesConfig) Remove(name string) error {
	if _, ok := c.Remotes[name]; !ok {
		return errUnknownRemote(name)
	}
	delete(c.Remotes, name)
	if c.Active == name {
		c.Active = ""
	}
	return nil
}

func remoteConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "vesting", "remotes.toml"), nil
}

// loadRemotesConfig returns an empty config when no file exists yet.
func loadRemotesConfig() (RemotesConfig, error) {
	cfg := RemotesConfig{}
	path, err := remoteConfigPath()
	if err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return RemotesConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// saveRemotesConfig replaces the file through a rename so a crash never
// leaves a truncated profile list. The file may hold tokens, so it and its
// directory are private to the user.
func saveRemotesConfig(cfg RemotesConfig) error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".remotes-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding remotes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// activeRemote is read once per process; commands only need its defaults.
var activeRemote = sync.OnceValue(func() Remote {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return Remote{}
	}
	_, r, err := cfg.Lookup("")
	if err != nil {
		return Remote{}
	}
	return r
})
