package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
	"github.com/provide-io/flavor/go/hwpack/pkg/hardware"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
)

// Config holds the paths a packager works with. They are fixed for the
// lifetime of a Packager.
type Config struct {
	// BuildPath is the directory receiving <moduleName>.zip.
	BuildPath string
	// WorkspacePath is the staging directory cleared at the start of
	// every run.
	WorkspacePath string
	// ControllerExt is the controller script extension, ".js" if empty.
	ControllerExt string
}

// Validate rejects configurations that would make a run destroy or archive
// its own output.
func (c Config) Validate() error {
	if c.BuildPath == "" {
		return fmt.Errorf("build path is required")
	}
	if c.WorkspacePath == "" {
		return fmt.Errorf("workspace path is required")
	}

	build, err := filepath.Abs(c.BuildPath)
	if err != nil {
		return fmt.Errorf("resolving build path: %w", err)
	}
	workspace, err := filepath.Abs(c.WorkspacePath)
	if err != nil {
		return fmt.Errorf("resolving workspace path: %w", err)
	}
	if rel, err := filepath.Rel(workspace, build); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("build path %s must not be inside workspace %s", c.BuildPath, c.WorkspacePath)
	}
	return nil
}

// ScriptBundler bundles the two script roles of a hardware module.
// *bundling.Adapter is the standard implementation.
type ScriptBundler interface {
	BundleBlock(ctx context.Context, entry string) (string, error)
	BundleModule(ctx context.Context, entry string) error
}

// Result describes a successful run.
type Result struct {
	ArchivePath string
	Checksum    string
	Manifest    descriptor.EntryModuleMetadata
}

// Packager runs the packaging pipeline. A Packager is not safe for
// concurrent use.
type Packager struct {
	cfg        Config
	bundler    ScriptBundler
	compressor hardware.Compressor
	logger     hclog.Logger
	stage      Stage
}

// New creates a Packager.
func New(cfg Config, bundler ScriptBundler, compressor hardware.Compressor, logger hclog.Logger) (*Packager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bundler == nil {
		return nil, fmt.Errorf("a script bundler is required")
	}
	if compressor == nil {
		return nil, fmt.Errorf("a hardware compressor is required")
	}
	if cfg.ControllerExt == "" {
		cfg.ControllerExt = ".js"
	}
	return &Packager{
		cfg:        cfg,
		bundler:    bundler,
		compressor: compressor,
		logger:     logging.OrNull(logger).Named("packager"),
	}, nil
}

// Stage reports the stage the last run reached. After a failed run it is
// the stage that failed.
func (p *Packager) Stage() Stage {
	return p.stage
}

// Run packages the module described by req. On failure the error of the
// failing stage is returned as is.
func (p *Packager) Run(ctx context.Context, req descriptor.CompressionRequest) (Result, error) {
	logger := p.logger.With("run", uuid.NewString(), "module", req.ModuleName)
	logger.Info("📦 Packaging hardware module", "version", req.Version, "workspace", p.cfg.WorkspacePath)

	res, err := p.run(ctx, req, logger)
	if err != nil {
		logger.Error("❌ Packaging failed", "stage", p.stage.String(), "error", err)
		return Result{}, err
	}

	p.enter(logger, StageDone)
	logger.Info("🎉 Hardware module packaged", "archive", res.ArchivePath, "checksum", res.Checksum)
	return res, nil
}

func (p *Packager) enter(logger hclog.Logger, s Stage) {
	p.stage = s
	logger.Debug("▶️ Stage", "stage", s.String())
}

func (p *Packager) run(ctx context.Context, req descriptor.CompressionRequest, logger hclog.Logger) (Result, error) {
	workspace := p.cfg.WorkspacePath

	p.enter(logger, StageValidateRequest)
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageLoadDescriptor)
	d, err := fileutil.ReadJSON[descriptor.HardwareDescriptor](req.HardwareConfigPath)
	if err != nil {
		return Result{}, err
	}

	p.enter(logger, StageClearWorkspace)
	if err := fileutil.ClearDirectory(workspace); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageBundleBlock)
	blockOut, err := p.bundler.BundleBlock(ctx, req.BlockFilePath)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("🧱 Block bundled", "output", blockOut)

	p.enter(logger, StageCopyIcon)
	if err := p.copyIcon(req, &d, logger); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageNormalizeDescriptor)
	descriptor.Normalize(&d, req)
	if err := fileutil.WriteJSON(req.HardwareConfigPath, &d); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageBundleController)
	controller := req.ControllerPath(p.cfg.ControllerExt)
	if err := p.bundler.BundleModule(ctx, controller); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageDelegateHardwareCompress)
	job := hardware.Job{
		Request:        req,
		Descriptor:     &d,
		ControllerPath: controller,
		Workspace:      workspace,
		Logger:         logger.Named(p.compressor.Name()),
	}
	if err := p.compressor.Compress(ctx, job); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageWriteManifest)
	manifest := descriptor.NewManifest(req, &d)
	for _, rel := range manifest.Files.Paths() {
		if !fileutil.Exists(filepath.Join(workspace, filepath.FromSlash(rel))) {
			return Result{}, fmt.Errorf("%w: manifest entry %s is not in workspace %s", hwerrors.ErrMissingInput, rel, workspace)
		}
	}
	if err := fileutil.WriteJSON(filepath.Join(workspace, descriptor.ManifestFileName), manifest); err != nil {
		return Result{}, err
	}

	p.enter(logger, StageFinalizeArchive)
	if err := os.MkdirAll(p.cfg.BuildPath, fileutil.DirPerms); err != nil {
		return Result{}, fmt.Errorf("%w: creating %s: %w", hwerrors.ErrIO, p.cfg.BuildPath, err)
	}
	archive := filepath.Join(p.cfg.BuildPath, req.ArchiveName())
	if err := fileutil.CompressEntries([]fileutil.Entry{fileutil.DirectoryEntry(workspace)}, archive); err != nil {
		return Result{}, err
	}
	sum, err := fileutil.Checksum(archive)
	if err != nil {
		return Result{}, err
	}

	return Result{ArchivePath: archive, Checksum: sum, Manifest: manifest}, nil
}

// copyIcon places the descriptor's icon in the workspace under exactly the
// relative path the descriptor, and therefore the manifest, references.
func (p *Packager) copyIcon(req descriptor.CompressionRequest, d *descriptor.HardwareDescriptor, logger hclog.Logger) error {
	if d.Icon == "" {
		return fmt.Errorf("%w: descriptor %s names no icon", hwerrors.ErrMissingInput, req.HardwareConfigPath)
	}
	rel := filepath.Clean(filepath.FromSlash(d.Icon))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: icon %q must be relative to the module root", hwerrors.ErrInvalidRequest, d.Icon)
	}

	src := filepath.Join(req.ModuleRoot(), rel)
	dst := filepath.Join(p.cfg.WorkspacePath, rel)
	if err := fileutil.CopyFile(src, dst); err != nil {
		return err
	}

	if mt, err := mimetype.DetectFile(dst); err == nil && !strings.HasPrefix(mt.String(), "image/") {
		logger.Warn("⚠️ Icon does not look like an image", "icon", d.Icon, "mime", mt.String())
	}
	logger.Debug("🖼️ Icon copied", "src", src, "dst", dst)
	return nil
}
