package dialect

import (
	"sync"

	"github.com/ethereum-optimism/solidity/evmasm"
)

type registryKey struct {
	version      evmasm.EVMVersion
	objectAccess bool
}

// Registry caches dialects per (EVM version, object access) pair. Building a
// dialect walks the full instruction table, so callers share one instance per
// combination. The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu       sync.Mutex
	dialects map[registryKey]*Dialect
}

// NewRegistry returns an empty dialect cache.
func NewRegistry() *Registry {
	return &Registry{dialects: make(map[registryKey]*Dialect)}
}

func (r *Registry) lookup(version evmasm.EVMVersion, objectAccess bool, build func() *Dialect) *Dialect {
	key := registryKey{version: version, objectAccess: objectAccess}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dialects[key]; ok {
		return d
	}
	d := build()
	r.dialects[key] = d
	return d
}

// StrictAssembly returns the plain-instruction dialect for version, building
// and caching it on first use.
func (r *Registry) StrictAssembly(version evmasm.EVMVersion) *Dialect {
	return r.lookup(version, false, func() *Dialect {
		return newDialect(version, false)
	})
}

// StrictAssemblyForObjects is StrictAssembly plus the object-access builtins.
func (r *Registry) StrictAssemblyForObjects(version evmasm.EVMVersion) *Dialect {
	return r.lookup(version, true, func() *Dialect {
		return newDialect(version, true)
	})
}

// Clear drops all cached dialects. Subsequent lookups rebuild them.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialects = make(map[registryKey]*Dialect)
}
