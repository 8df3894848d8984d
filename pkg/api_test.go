package pkg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/hwpack/internal/workspace"
	"github.com/provide-io/flavor/go/hwpack/pkg/config"
	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func moduleFixture(t *testing.T) (descriptor.CompressionRequest, config.Config) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "modules", "sensor")

	writeFile(t, filepath.Join(root, "sensor.json"), `{"id": "x1", "name": "Sensor", "category": "c1", "platform": "p1", "icon": "icon.png"}`)
	writeFile(t, filepath.Join(root, "block_sensor.js"), "import Entry from 'entry';\nEntry.blocks = ['sensor'];\n")
	writeFile(t, filepath.Join(root, "sensor-mod.js"), "const BaseModule = require('./baseModule');\nmodule.exports = new (class extends BaseModule {})();\n")
	writeFile(t, filepath.Join(root, "icon.png"), "\x89PNG\r\n\x1a\n")

	cfg := config.Default()
	cfg.BuildPath = filepath.Join(base, "dist")
	cfg.WorkspacePath = filepath.Join(base, "dist", "unpacked")

	req := descriptor.CompressionRequest{
		ModuleName:         "sensor-mod",
		Version:            "1.0.0",
		HardwareConfigPath: filepath.Join(root, "sensor.json"),
		BlockFilePath:      filepath.Join(root, "block_sensor.js"),
	}
	return req, cfg
}

func TestBuildModule(t *testing.T) {
	req, cfg := moduleFixture(t)

	res, err := BuildModule(context.Background(), req, cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.BuildPath, "sensor-mod.zip"), res.ArchivePath)

	verified, err := VerifyArchive(res.ArchivePath, VerifyOptions{Workspace: cfg.Workspace}, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Checksum, verified.Checksum)
	assert.Equal(t, res.Manifest, verified.Manifest)

	f, err := os.OpenFile(res.ArchivePath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("tampered")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tampered, err := VerifyArchive(res.ArchivePath, VerifyOptions{Workspace: cfg.Workspace}, nil)
	assert.True(t, errors.Is(err, hwerrors.ErrVerification), "got %v", err)
	require.NotEmpty(t, tampered.Problems)
	assert.Contains(t, tampered.Problems[len(tampered.Problems)-1], "does not match run report")

	report, err := workspace.ReadReport(cfg.WorkspacePath)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "Done", report.Stage)
	assert.Equal(t, res.Checksum, report.Checksum)

	lock, err := workspace.Acquire(cfg.WorkspacePath)
	require.NoError(t, err, "lock released after the run")
	require.NoError(t, lock.Release())
}

func TestBuildModuleRecordsFailure(t *testing.T) {
	req, cfg := moduleFixture(t)
	req.BlockFilePath = filepath.Join(filepath.Dir(req.BlockFilePath), "missing.js")

	_, err := BuildModule(context.Background(), req, cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerrors.ErrMissingInput), "got %v", err)

	report, readErr := workspace.ReadReport(cfg.WorkspacePath)
	require.NoError(t, readErr)
	assert.False(t, report.Succeeded())
	assert.Equal(t, "BundleBlock", report.Stage)
	assert.Equal(t, err.Error(), report.Error)
}

func TestBuildModuleWorkspaceBusy(t *testing.T) {
	req, cfg := moduleFixture(t)

	held, err := workspace.Acquire(cfg.WorkspacePath)
	require.NoError(t, err)
	defer held.Release()

	_, err = BuildModule(context.Background(), req, cfg, nil)
	assert.True(t, errors.Is(err, hwerrors.ErrWorkspaceBusy), "got %v", err)

	_, err = workspace.ReadReport(cfg.WorkspacePath)
	assert.True(t, errors.Is(err, hwerrors.ErrNotFound), "a refused run leaves no report")
}

func TestBuildModuleRejectsBadInput(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		req, cfg := moduleFixture(t)
		req.ModuleName = "../escape"
		_, err := BuildModule(context.Background(), req, cfg, nil)
		assert.True(t, errors.Is(err, hwerrors.ErrInvalidRequest), "got %v", err)
	})

	t.Run("compressor", func(t *testing.T) {
		req, cfg := moduleFixture(t)
		cfg.HardwareCompressor = "tarball"
		_, err := BuildModule(context.Background(), req, cfg, nil)
		assert.True(t, errors.Is(err, hwerrors.ErrInvalidRequest), "got %v", err)
	})

	t.Run("build inside workspace", func(t *testing.T) {
		req, cfg := moduleFixture(t)
		cfg.WorkspacePath = cfg.BuildPath
		_, err := BuildModule(context.Background(), req, cfg, nil)
		assert.True(t, errors.Is(err, hwerrors.ErrInvalidRequest), "got %v", err)
	})
}
