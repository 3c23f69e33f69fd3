package build

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sofmeright/verbuild/src/config"
	"github.com/sofmeright/verbuild/src/gitver"
)

// Toolchain is the interface every external build toolchain implements.
type Toolchain interface {
	Name() string
	// Args returns the argv Publish would run for req.
	Args(req PublishRequest) []string
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// PublishRequest describes one version's build.
type PublishRequest struct {
	Version  string           // configured version name
	Ref      string           // configured ref
	Revision *gitver.Revision // what Ref resolved to
	Dir      string           // working copy root; the toolchain runs here
	Output   string           // absolute publish directory
}

// Constructor builds a toolchain from its configuration.
type Constructor func(cfg config.ToolchainConfig) (Toolchain, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a toolchain constructor to the global registry.
// Called from init() in each toolchain file.
func Register(kind string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("build: duplicate toolchain registration: %s", kind))
	}
	registry[kind] = constructor
}

// Get returns a new toolchain for cfg.Kind.
func Get(cfg config.ToolchainConfig) (Toolchain, error) {
	registryMu.RLock()
	ctor, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("build: unknown toolchain kind %q (supported: %v)", cfg.Kind, All())
	}
	return ctor(cfg)
}

// All returns sorted names of all registered toolchains.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
