// Package keychain stores qsctl credentials in the OS credential store.
package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies the keyring namespace.
const ServiceName = "querysmith"

const (
	KeyAPIKey    = "api_key"
	KeyServerURL = "server_url"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("keychain: not found")

// Manager is a thread-safe wrapper over an OS keyring.
type Manager struct {
	mu   sync.Mutex
	ring keyring.Keyring
}

// New opens the platform keyring. On Linux without a desktop secret service,
// setting QUERYSMITH_KEYRING_PASSWORD enables an encrypted file backend.
func New() (*Manager, error) {
	cfg := keyring.Config{
		ServiceName:              ServiceName,
		AllowedBackends:          backends(),
		PassPrefix:               ServiceName,
		WinCredPrefix:            ServiceName,
		KeychainTrustApplication: true,
	}
	if pw := os.Getenv("QUERYSMITH_KEYRING_PASSWORD"); pw != "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		cfg.AllowedBackends = append(cfg.AllowedBackends, keyring.FileBackend)
		cfg.FileDir = filepath.Join(dir, ServiceName, "keyring")
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(pw)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &Manager{ring: ring}, nil
}

// NewWithRing wraps an already opened keyring.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

func backends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend}
	default:
		return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}
}

func (m *Manager) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key}); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (m *Manager) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(item.Data), nil
}

// Clear removes every qsctl credential. Missing keys are not an error.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range []string{KeyAPIKey, KeyServerURL} {
		if err := m.ring.Remove(k); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("remove %s: %w", k, err)
		}
	}
	return nil
}
