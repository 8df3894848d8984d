// Package bundling turns block and controller entry scripts into the
// bundles a host application loads. A single Bundler is driven in one of
// two variants, chosen by the role of the script.
package bundling

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
)

// Variant selects the output shape of a bundle.
type Variant int

const (
	// Standalone is a single self-executing unit (IIFE) with every
	// dependency inlined except declared globals.
	Standalone Variant = iota
	// Module is a plain CommonJS module; package dependencies stay
	// as require calls.
	Module
)

func (v Variant) String() string {
	switch v {
	case Standalone:
		return "standalone"
	case Module:
		return "module"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Options describes one bundler invocation.
type Options struct {
	Entry   string
	Outfile string
	Variant Variant
	// Transforms run over every first-party source before resolution.
	Transforms []Transform
	// Globals maps import specifiers to host-provided global names. The
	// specifiers are left out of the bundle.
	Globals map[string]string
	// InlineDependencies bundles package dependencies into the output.
	InlineDependencies bool
}

// Bundler produces Outfile from Entry. Implementations must not leave a
// partial Outfile behind when they fail.
type Bundler interface {
	Bundle(ctx context.Context, opts Options) error
}

// DefaultGlobals are provided by the host runtime to block scripts.
func DefaultGlobals() map[string]string {
	return map[string]string{"lodash": "_"}
}

// Adapter wraps a Bundler with the two configurations the packager needs.
type Adapter struct {
	bundler          Bundler
	outDir           string
	globals          map[string]string
	blockTransforms  []Transform
	moduleTransforms []Transform
	logger           hclog.Logger
}

// AdapterOption customises an Adapter.
type AdapterOption func(*Adapter)

// WithGlobals replaces the default host globals for block bundles.
func WithGlobals(globals map[string]string) AdapterOption {
	return func(a *Adapter) {
		if globals != nil {
			a.globals = globals
		}
	}
}

// WithBlockTransforms replaces the block source transforms.
func WithBlockTransforms(t ...Transform) AdapterOption {
	return func(a *Adapter) { a.blockTransforms = t }
}

// WithModuleTransforms replaces the controller source transforms.
func WithModuleTransforms(t ...Transform) AdapterOption {
	return func(a *Adapter) { a.moduleTransforms = t }
}

// WithLogger sets the adapter logger.
func WithLogger(logger hclog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = logger }
}

// NewAdapter writes block bundles into outDir.
func NewAdapter(b Bundler, outDir string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		bundler:          b,
		outDir:           outDir,
		globals:          DefaultGlobals(),
		blockTransforms:  []Transform{NewBlockModuleReplacer()},
		moduleTransforms: []Transform{NewHardwareModuleReplacer()},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrNull(a.logger)
	return a
}

// BundleBlock bundles a block-definition script into a standalone unit
// under outDir, keeping the entry's base name. It returns the output path.
func (a *Adapter) BundleBlock(ctx context.Context, entry string) (string, error) {
	if !fileutil.Exists(entry) {
		return "", fmt.Errorf("%w: block script %s", hwerrors.ErrMissingInput, entry)
	}

	out := filepath.Join(a.outDir, filepath.Base(entry))
	a.logger.Debug("🧶 Bundling block script", "entry", entry, "output", out)
	err := a.bundler.Bundle(ctx, Options{
		Entry:              entry,
		Outfile:            out,
		Variant:            Standalone,
		Transforms:         a.blockTransforms,
		Globals:            a.globals,
		InlineDependencies: true,
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// BundleModule bundles a controller script as a CommonJS module and
// overwrites the entry file with the result.
func (a *Adapter) BundleModule(ctx context.Context, entry string) error {
	if !fileutil.Exists(entry) {
		return fmt.Errorf("%w: controller script %s", hwerrors.ErrMissingInput, entry)
	}

	a.logger.Debug("🧶 Bundling controller module in place", "entry", entry)
	return a.bundler.Bundle(ctx, Options{
		Entry:      entry,
		Outfile:    entry,
		Variant:    Module,
		Transforms: a.moduleTransforms,
	})
}
