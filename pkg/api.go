// Package pkg is the caller-facing entry point: it resolves configuration
// into a wired packager, serializes runs per workspace and records how
// each run ended.
package pkg

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/hwpack/internal/workspace"
	"github.com/provide-io/flavor/go/hwpack/pkg/bundling"
	"github.com/provide-io/flavor/go/hwpack/pkg/config"
	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/hardware"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
	"github.com/provide-io/flavor/go/hwpack/pkg/packager"
)

// BuildModule packages one hardware module with esbuild and the configured
// hardware compressor. The workspace is locked for the duration of the run
// and a run report is left next to it, whatever the outcome.
func BuildModule(ctx context.Context, req descriptor.CompressionRequest, cfg config.Config, logger hclog.Logger) (packager.Result, error) {
	logger = logging.OrNull(logger)

	if err := req.Validate(); err != nil {
		return packager.Result{}, err
	}
	pc, err := cfg.PackagerConfig(req.ModuleName)
	if err != nil {
		return packager.Result{}, err
	}

	lock, err := workspace.Acquire(pc.WorkspacePath)
	if err != nil {
		return packager.Result{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Debug("Failed to release workspace lock", "lock", lock.Path(), "error", err)
		}
	}()
	logger.Debug("🔒 Workspace locked", "workspace", pc.WorkspacePath, "lock", lock.Path())

	compressor, err := hardware.New(cfg.HardwareCompressor, hardware.Options{Include: cfg.Include})
	if err != nil {
		return packager.Result{}, fmt.Errorf("%w: %w", hwerrors.ErrInvalidRequest, err)
	}
	adapter := bundling.NewAdapter(
		bundling.NewEsbuildBundler(logger),
		pc.WorkspacePath,
		bundling.WithGlobals(cfg.GlobalMap()),
		bundling.WithLogger(logger.Named("bundling")),
	)
	p, err := packager.New(pc, adapter, compressor, logger)
	if err != nil {
		return packager.Result{}, err
	}

	res, runErr := p.Run(ctx, req)

	report := workspace.RunReport{
		ModuleName: req.ModuleName,
		Version:    req.Version,
		Stage:      p.Stage().String(),
		Archive:    res.ArchivePath,
		Checksum:   res.Checksum,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	if err := workspace.WriteReport(pc.WorkspacePath, report); err != nil {
		logger.Warn("⚠️ Could not write run report", "path", workspace.ReportPath(pc.WorkspacePath), "error", err)
	}

	return res, runErr
}
