// Package grant stores access grants: the last accepted access code per share,
// kept in a device-local key-value store. The store is always injected so the
// gate can be exercised against a fake.
package grant

import (
	"context"
	"sync"
)

const keyPrefix = "ar_access_"

// Key returns the entry name that holds the grant for a share.
func Key(shareLinkID string) string {
	return keyPrefix + shareLinkID
}

// KV is the device-local key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Lookup reads the grant for a share.
func Lookup(ctx context.Context, kv KV, shareLinkID string) (string, bool, error) {
	return kv.Get(ctx, Key(shareLinkID))
}

// MemoryKV is an in-process KV, used in tests and when no Redis is configured.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of stored entries.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Devices hands out the KV belonging to one device.
type Devices interface {
	ForDevice(deviceID string) KV
	Ping(ctx context.Context) error
}

// MemoryDevices keeps one MemoryKV per device.
type MemoryDevices struct {
	mu      sync.Mutex
	devices map[string]*MemoryKV
}

func NewMemoryDevices() *MemoryDevices {
	return &MemoryDevices{devices: make(map[string]*MemoryKV)}
}

func (m *MemoryDevices) ForDevice(deviceID string) KV {
	m.mu.Lock()
	defer m.mu.Unlock()
	kv, ok := m.devices[deviceID]
	if !ok {
		kv = NewMemoryKV()
		m.devices[deviceID] = kv
	}
	return kv
}

func (m *MemoryDevices) Ping(context.Context) error {
	return nil
}
