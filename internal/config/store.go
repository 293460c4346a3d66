package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"

	"ws2osc/internal/haptic"
)

var (
	ErrEmptyTag       = errors.New("tag must not be empty")
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidHost    = errors.New("invalid host")
	ErrInvalidTimeout = errors.New("timeout must be a positive number of seconds")
	ErrNoPath         = errors.New("configuration has no file path")
)

// Target is the OSC destination.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseTarget splits "host:port" and validates both parts.
func ParseTarget(addr string) (Target, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: %v", ErrInvalidHost, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, portStr)
	}
	if err := ValidateTarget(host, port); err != nil {
		return Target{}, err
	}
	return Target{Host: host, Port: port}, nil
}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d (allowed 1-65535)", ErrInvalidPort, port)
	}
	return nil
}

func ValidateTarget(host string, port int) error {
	if host == "" {
		return fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	return ValidatePort(port)
}

func ValidateTimeout(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, seconds)
	}
	return nil
}

func ValidateMapping(tag string, channel int) error {
	if tag == "" {
		return ErrEmptyTag
	}
	if err := haptic.Channel(channel).Validate(); err != nil {
		return fmt.Errorf("tag %q: %w", tag, err)
	}
	return nil
}

// Store is the single source of truth for the tag table, the OSC target and the
// fail-safe timeout. Every read reflects the latest mutation.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore wraps an already loaded configuration. An empty path keeps the store in memory.
func NewStore(path string, cfg Config) *Store {
	cfg.Mappings = copyMappings(cfg.Mappings)
	return &Store{path: path, cfg: cfg}
}

// Open loads path, creating it with default values when it does not exist yet.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s := NewStore(path, Default())
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("create default configuration: %w", err)
		}
		return s, nil
	}

	cfg, err := NewConfig(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}
	return NewStore(path, *cfg), nil
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Mappings = copyMappings(s.cfg.Mappings)
	return cfg
}

// Channel looks up the channel mapped to tag. Tags are case-sensitive.
func (s *Store) Channel(tag string) (haptic.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.cfg.Mappings[tag]
	return haptic.Channel(ch), ok
}

func (s *Store) Mappings() map[string]haptic.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]haptic.Channel, len(s.cfg.Mappings))
	for tag, ch := range s.cfg.Mappings {
		out[tag] = haptic.Channel(ch)
	}
	return out
}

func (s *Store) AddMapping(tag string, ch haptic.Channel) error {
	if err := ValidateMapping(tag, int(ch)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Mappings == nil {
		s.cfg.Mappings = map[string]int{}
	}
	s.cfg.Mappings[tag] = int(ch)
	return nil
}

// RemoveMapping deletes tag and reports whether it existed.
func (s *Store) RemoveMapping(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cfg.Mappings[tag]
	delete(s.cfg.Mappings, tag)
	return ok
}

func (s *Store) Target() Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Target{Host: s.cfg.OSC.Host, Port: s.cfg.OSC.Port}
}

func (s *Store) SetTarget(t Target) error {
	if err := ValidateTarget(t.Host, t.Port); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.OSC = OSCConf{Host: t.Host, Port: t.Port}
	return nil
}

// Timeout returns the fail-safe timeout in seconds.
func (s *Store) Timeout() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Bridge.TimeoutSeconds
}

func (s *Store) SetTimeout(seconds int) error {
	if err := ValidateTimeout(seconds); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Bridge.TimeoutSeconds = seconds
	return nil
}

// Save writes the configuration atomically next to the original file.
func (s *Store) Save() error {
	cfg := s.Config()
	if s.path == "" {
		return ErrNoPath
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".conf-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Reload re-reads the file. On error the current state is kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return ErrNoPath
	}
	cfg, err := NewConfig(s.path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.cfg = *cfg
	s.mu.Unlock()
	return nil
}

func copyMappings(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
