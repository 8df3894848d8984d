package hardware

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
)

func init() {
	Register(DefaultCompressor, func(opts Options) Compressor {
		return NewArchiveCompressor(opts.Include...)
	})
}

// ArchiveCompressor packs the normalized descriptor, the bundled controller,
// the icon and any included extras into <workspace>/<moduleName>.zip, the
// file the manifest lists as the module.
type ArchiveCompressor struct {
	include []string
}

// NewArchiveCompressor creates an ArchiveCompressor.
func NewArchiveCompressor(include ...string) *ArchiveCompressor {
	return &ArchiveCompressor{include: include}
}

// Name implements Compressor.
func (c *ArchiveCompressor) Name() string {
	return DefaultCompressor
}

// Compress implements Compressor.
func (c *ArchiveCompressor) Compress(ctx context.Context, job Job) error {
	logger := logging.OrNull(job.Logger)
	root := job.ModuleRoot()

	entries := []fileutil.Entry{
		fileutil.FileEntry(job.Request.HardwareConfigPath),
		fileutil.FileEntry(job.ControllerPath),
	}
	if job.Descriptor != nil && job.Descriptor.Icon != "" {
		entries = append(entries, fileutil.Entry{
			Kind: fileutil.KindFile,
			Path: filepath.Join(root, filepath.FromSlash(job.Descriptor.Icon)),
			Name: job.Descriptor.Icon,
		})
	}

	extras, err := c.matchIncludes(root)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[filepath.Clean(e.Path)] = true
	}
	for _, rel := range extras {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if seen[abs] {
			continue
		}
		seen[abs] = true
		entries = append(entries, fileutil.Entry{Kind: fileutil.KindFile, Path: abs, Name: rel})
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dest := filepath.Join(job.Workspace, job.Request.ArchiveName())
	logger.Debug("🗜️ Compressing hardware module", "dest", dest, "files", len(entries))
	if err := fileutil.CompressEntries(entries, dest); err != nil {
		return err
	}
	logger.Info("✅ Hardware module compressed", "archive", dest, "extras", len(extras))
	return nil
}

// matchIncludes resolves the include patterns to sorted, slash-separated
// file paths relative to root.
func (c *ArchiveCompressor) matchIncludes(root string) ([]string, error) {
	fsys := os.DirFS(root)
	var matches []string
	dedup := make(map[string]bool)

	for _, pattern := range c.include {
		pattern = strings.TrimPrefix(path.Clean(filepath.ToSlash(pattern)), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: invalid include pattern %q", hwerrors.ErrInvalidRequest, pattern)
		}
		if strings.HasPrefix(pattern, "../") || path.IsAbs(pattern) {
			return nil, fmt.Errorf("%w: include pattern %q escapes the module root", hwerrors.ErrInvalidRequest, pattern)
		}

		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%w: matching %q under %s: %w", hwerrors.ErrIO, pattern, root, err)
		}
		for _, f := range found {
			if !dedup[f] {
				dedup[f] = true
				matches = append(matches, f)
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}
