package workspace

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
)

func TestCacheRoot(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		goos string
		want string
	}{
		{name: "override", env: map[string]string{CacheDirEnv: "/srv/cache", "HOME": "/home/u"}, goos: "linux", want: "/srv/cache"},
		{name: "xdg", env: map[string]string{"XDG_CACHE_HOME": "/x", "HOME": "/home/u"}, goos: "linux", want: filepath.Join("/x", "hwpack")},
		{name: "linux home", env: map[string]string{"HOME": "/home/u"}, goos: "linux", want: filepath.Join("/home/u", ".cache", "hwpack")},
		{name: "darwin", env: map[string]string{"HOME": "/Users/u"}, goos: "darwin", want: filepath.Join("/Users/u", "Library", "Caches", "hwpack")},
		{name: "windows", env: map[string]string{"LOCALAPPDATA": `C:\AppData`}, goos: "windows", want: filepath.Join(`C:\AppData`, "hwpack", "cache")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			getenv := func(key string) string { return tc.env[key] }
			assert.Equal(t, tc.want, cacheRootWith(getenv, tc.goos))
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(CacheDirEnv, "/srv/cache")
	assert.Equal(t, filepath.Join("/srv/cache", "workspace", "sensor-mod"), DefaultPath("sensor-mod"))
}

func TestAcquireIsExclusive(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "dist", "unpacked")

	first, err := Acquire(ws)
	require.NoError(t, err)
	assert.Equal(t, ws+".lock", first.Path())
	assert.False(t, fileutil.Exists(ws), "locking does not create the workspace")

	_, err = Acquire(ws)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerrors.ErrWorkspaceBusy), "got %v", err)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := Acquire(ws)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReportRoundTrip(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "unpacked")
	assert.Equal(t, ws+".run.json", ReportPath(ws+string(filepath.Separator)))

	_, err := ReadReport(ws)
	assert.True(t, errors.Is(err, hwerrors.ErrNotFound), "got %v", err)

	failed := RunReport{ModuleName: "sensor-mod", Version: "1.0.0", Stage: "CopyIcon", Error: "icon missing"}
	require.NoError(t, WriteReport(ws, failed))

	got, err := ReadReport(ws)
	require.NoError(t, err)
	assert.False(t, got.Succeeded())
	assert.Equal(t, "CopyIcon", got.Stage)
	assert.WithinDuration(t, time.Now(), got.Timestamp, time.Minute)

	require.NoError(t, WriteReport(ws, RunReport{ModuleName: "sensor-mod", Version: "1.0.0", Stage: "Done"}))
	got, err = ReadReport(ws)
	require.NoError(t, err)
	assert.True(t, got.Succeeded())
	assert.Empty(t, got.Error)
}
