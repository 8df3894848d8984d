package hardware

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
)

type stubCompressor struct{ include []string }

func (s *stubCompressor) Name() string                        { return "stub" }
func (s *stubCompressor) Compress(context.Context, Job) error { return nil }

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func zipNames(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestRegistry(t *testing.T) {
	Register("stub", func(opts Options) Compressor { return &stubCompressor{include: opts.Include} })

	c, err := New("stub", Options{Include: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Name())
	assert.Equal(t, []string{"x"}, c.(*stubCompressor).include)

	def, err := New("", Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCompressor, def.Name())

	_, err = New("missing", Options{})
	assert.ErrorContains(t, err, "unknown hardware compressor")

	assert.Contains(t, Names(), "stub")
	assert.Contains(t, Names(), DefaultCompressor)
}

func moduleJob(t *testing.T) (Job, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "sensor")
	workspace := filepath.Join(t.TempDir(), "unpacked")
	require.NoError(t, os.MkdirAll(workspace, 0o755))

	write(t, filepath.Join(root, "sensor.json"), `{"name": "Sensor", "icon": "images/icon.png"}`)
	write(t, filepath.Join(root, "sensor-mod.js"), "module.exports = {};")
	write(t, filepath.Join(root, "images", "icon.png"), "png")
	write(t, filepath.Join(root, "driver", "win", "setup.exe"), "exe")
	write(t, filepath.Join(root, "driver", "mac", "setup.pkg"), "pkg")
	write(t, filepath.Join(root, "firmware", "sensor.hex"), "hex")
	write(t, filepath.Join(root, "notes.md"), "notes")

	var d descriptor.HardwareDescriptor
	d.Icon = "images/icon.png"
	req := descriptor.CompressionRequest{
		ModuleName:         "sensor-mod",
		Version:            "1.0.0",
		HardwareConfigPath: filepath.Join(root, "sensor.json"),
		BlockFilePath:      filepath.Join(root, "block.js"),
	}
	return Job{
		Request:        req,
		Descriptor:     &d,
		ControllerPath: req.ControllerPath(".js"),
		Workspace:      workspace,
	}, workspace
}

func TestArchiveCompressorDefaultContents(t *testing.T) {
	job, workspace := moduleJob(t)

	require.NoError(t, NewArchiveCompressor().Compress(context.Background(), job))

	contents := zipNames(t, filepath.Join(workspace, "sensor-mod.zip"))
	assert.Equal(t, []string{"images/icon.png", "sensor-mod.js", "sensor.json"}, keys(contents))
	assert.Equal(t, "module.exports = {};", contents["sensor-mod.js"])
}

func TestArchiveCompressorIncludes(t *testing.T) {
	job, workspace := moduleJob(t)

	c := NewArchiveCompressor("driver/**", "./firmware/*.hex", "images/*.png")
	require.NoError(t, c.Compress(context.Background(), job))

	contents := zipNames(t, filepath.Join(workspace, "sensor-mod.zip"))
	assert.Equal(t, []string{
		"driver/mac/setup.pkg",
		"driver/win/setup.exe",
		"firmware/sensor.hex",
		"images/icon.png",
		"sensor-mod.js",
		"sensor.json",
	}, keys(contents))
}

func TestArchiveCompressorRejectsBadPatterns(t *testing.T) {
	for _, pattern := range []string{"../outside/**", "[unclosed"} {
		t.Run(pattern, func(t *testing.T) {
			job, _ := moduleJob(t)
			err := NewArchiveCompressor(pattern).Compress(context.Background(), job)
			assert.True(t, errors.Is(err, hwerrors.ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestArchiveCompressorMissingController(t *testing.T) {
	job, workspace := moduleJob(t)
	require.NoError(t, os.Remove(job.ControllerPath))

	err := NewArchiveCompressor().Compress(context.Background(), job)
	assert.True(t, errors.Is(err, hwerrors.ErrIO), "got %v", err)
	_, statErr := os.Stat(filepath.Join(workspace, "sensor-mod.zip"))
	assert.True(t, os.IsNotExist(statErr))
}
