package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(t.TempDir(), "elsewhere")

	tests := []struct {
		name        string
		cfg         PathsConfig
		wantReports string
		wantLogs    string
	}{
		{
			name:        "relative to base",
			cfg:         PathsConfig{BaseDir: base, ReportsDir: "out", LogsDir: "log"},
			wantReports: filepath.Join(base, "out"),
			wantLogs:    filepath.Join(base, "log"),
		},
		{
			name:        "absolute kept",
			cfg:         PathsConfig{BaseDir: base, ReportsDir: abs},
			wantReports: abs,
			wantLogs:    filepath.Join(base, "logs"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := ResolvePaths(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReports, paths.ReportsDir)
			assert.Equal(t, tt.wantLogs, paths.LogsDir)
		})
	}
}

func TestResolvePathsDefaultsToWorkingDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	paths, err := ResolvePaths(PathsConfig{})
	require.NoError(t, err)
	assert.Equal(t, wd, paths.BaseDir)
	assert.Equal(t, filepath.Join(wd, "reports"), paths.ReportsDir)
}

func TestEnsureDirectories(t *testing.T) {
	paths, err := ResolvePaths(PathsConfig{BaseDir: t.TempDir(), ReportsDir: "a/b", LogsDir: "c"})
	require.NoError(t, err)

	require.NoError(t, paths.EnsureDirectories())
	assert.DirExists(t, paths.ReportsDir)
	assert.DirExists(t, paths.LogsDir)
	assert.True(t, FileExists(paths.ReportsDir))
}

func TestSearchReportDir(t *testing.T) {
	paths := &Paths{ReportsDir: "/srv/reports"}

	dir, err := paths.SearchReportDir("3f1c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/reports", "3f1c"), dir)

	for _, bad := range []string{"", ".", "..", "../x", `a\b`} {
		_, err := paths.SearchReportDir(bad)
		assert.Error(t, err, bad)
	}
}
