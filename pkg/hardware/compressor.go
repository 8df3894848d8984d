// Package hardware is the extension point for hardware-family specific
// packaging. A Compressor runs after the descriptor is normalized and the
// controller is bundled, and adds its artifacts to the workspace before the
// manifest is written.
package hardware

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
)

// DefaultCompressor is the registry name used when none is configured.
const DefaultCompressor = "archive"

// Job carries everything a Compressor may read. Compressors write only
// below Workspace.
type Job struct {
	Request        descriptor.CompressionRequest
	Descriptor     *descriptor.HardwareDescriptor
	ControllerPath string
	Workspace      string
	Logger         hclog.Logger
}

// ModuleRoot is the directory holding the module's sources.
func (j Job) ModuleRoot() string {
	return j.Request.ModuleRoot()
}

// Compressor performs the hardware-specific packaging step.
type Compressor interface {
	// Name returns the registry name
	Name() string

	// Compress adds hardware artifacts to job.Workspace
	Compress(ctx context.Context, job Job) error
}

// Options configures compressors built through the registry.
type Options struct {
	// Include lists doublestar patterns, relative to the module root, of
	// extra files to ship with the controller.
	Include []string
}

// Factory builds a Compressor.
type Factory func(Options) Compressor

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a compressor available under name, replacing any
// previous registration.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New builds the compressor registered under name.
func New(name string, opts Options) (Compressor, error) {
	if name == "" {
		name = DefaultCompressor
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown hardware compressor: %q (registered: %v)", name, Names())
	}
	return f(opts), nil
}

// Names lists registered compressors in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
