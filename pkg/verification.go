package pkg

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zip"

	"github.com/provide-io/flavor/go/hwpack/internal/workspace"
	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
)

// VerifyResult summarizes an archive check.
type VerifyResult struct {
	Path     string
	Checksum string
	Manifest descriptor.EntryModuleMetadata
	Entries  []string
	Problems []string
}

// VerifyOptions selects the optional checks of VerifyArchive.
type VerifyOptions struct {
	// Checksum, when set, must match the archive digest.
	Checksum string
	// Workspace, when set and Checksum is empty, locates the workspace of
	// the manifest's module. The checksum recorded by that workspace's last
	// successful run is used if the run produced this archive.
	Workspace func(moduleName string) string
}

// OK reports whether the archive passed every check.
func (r VerifyResult) OK() bool {
	return len(r.Problems) == 0
}

// VerifyArchive checks that a built archive carries a hardware manifest
// whose files entries all resolve to archive members, and that its digest
// matches the expected one when opts supplies it. Problems found are listed
// in the result and reported as ErrVerification.
func VerifyArchive(archivePath string, opts VerifyOptions, logger hclog.Logger) (VerifyResult, error) {
	logger = logging.OrNull(logger).Named("verify")
	res := VerifyResult{Path: archivePath}

	sum, err := fileutil.Checksum(archivePath)
	if err != nil {
		return res, err
	}
	res.Checksum = sum

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return res, fmt.Errorf("%w: opening archive %s: %w", hwerrors.ErrParse, archivePath, err)
	}
	defer func() {
		if err := zr.Close(); err != nil {
			logger.Debug("Failed to close archive", "error", err)
		}
	}()

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[f.Name] = f
		res.Entries = append(res.Entries, f.Name)
	}
	sort.Strings(res.Entries)
	logger.Info("Verifying archive", "path", archivePath, "entries", len(res.Entries))

	mf, ok := members[descriptor.ManifestFileName]
	if !ok {
		res.Problems = append(res.Problems, descriptor.ManifestFileName+" is missing")
		return res, report(logger, res)
	}
	data, err := readMember(mf)
	if err != nil {
		return res, fmt.Errorf("%w: reading %s: %w", hwerrors.ErrIO, descriptor.ManifestFileName, err)
	}
	if err := json.Unmarshal(data, &res.Manifest); err != nil {
		return res, fmt.Errorf("%w: %s: %w", hwerrors.ErrParse, descriptor.ManifestFileName, err)
	}
	logger.Info("✓ Manifest readable", "module", res.Manifest.ModuleName, "version", res.Manifest.Version)

	if res.Manifest.Type != descriptor.ModuleTypeHardware {
		res.Problems = append(res.Problems, fmt.Sprintf("type is %q, want %q", res.Manifest.Type, descriptor.ModuleTypeHardware))
	}
	if res.Manifest.ModuleName == "" {
		res.Problems = append(res.Problems, "moduleName is empty")
	}

	files := map[string]string{
		"image":  res.Manifest.Files.Image,
		"block":  res.Manifest.Files.Block,
		"module": res.Manifest.Files.Module,
	}
	for _, key := range []string{"image", "block", "module"} {
		name := files[key]
		switch {
		case name == "":
			res.Problems = append(res.Problems, fmt.Sprintf("files.%s is empty", key))
		case members[path.Clean(name)] == nil:
			res.Problems = append(res.Problems, fmt.Sprintf("files.%s %s is not in the archive", key, name))
		default:
			logger.Info("✓ File present", "role", key, "path", name)
		}
	}

	if err := verifyDigest(archivePath, opts, &res, logger); err != nil {
		return res, err
	}

	return res, report(logger, res)
}

func verifyDigest(archivePath string, opts VerifyOptions, res *VerifyResult, logger hclog.Logger) error {
	expected, source := opts.Checksum, "expected"
	if expected == "" && opts.Workspace != nil && res.Manifest.ModuleName != "" {
		expected, source = recordedChecksum(archivePath, opts.Workspace(res.Manifest.ModuleName), logger), "run report"
	}
	if expected == "" {
		return nil
	}

	ok, err := fileutil.VerifyChecksum(archivePath, expected)
	if err != nil {
		return err
	}
	if !ok {
		res.Problems = append(res.Problems, fmt.Sprintf("checksum %s does not match %s %s", res.Checksum, source, expected))
		return nil
	}
	logger.Info("✓ Checksum matches", "source", source)
	return nil
}

// recordedChecksum returns the checksum of the last successful run in ws
// when that run wrote archivePath, or "".
func recordedChecksum(archivePath, ws string, logger hclog.Logger) string {
	rep, err := workspace.ReadReport(ws)
	if err != nil {
		logger.Debug("No run report", "workspace", ws, "error", err)
		return ""
	}
	if !rep.Succeeded() || !samePath(rep.Archive, archivePath) {
		return ""
	}
	return rep.Checksum
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func report(logger hclog.Logger, res VerifyResult) error {
	if res.OK() {
		logger.Info("✓ Archive verification passed", "checksum", res.Checksum)
		return nil
	}
	logger.Error("✗ Archive verification failed", "problem_count", len(res.Problems))
	for _, p := range res.Problems {
		logger.Error("  Verification problem", "details", p)
	}
	return fmt.Errorf("%w: %s: %d problem(s), first: %s", hwerrors.ErrVerification, res.Path, len(res.Problems), res.Problems[0])
}
