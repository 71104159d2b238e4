package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func TestIsSeriesFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"prices.csv", true},
		{"PRICES.CSV", true},
		{"book.xlsx", true},
		{"macro.xlsm", true},
		{"~$book.xlsx", false},
		{"legacy.xls", false},
		{"notes.txt", false},
		{"csv", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSeriesFile(tt.name))
		})
	}
}

func TestFindSeriesFiles(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "data", "b.xlsx"), 4)
	writeFile(t, filepath.Join(base, "data", "a.csv"), 2)
	writeFile(t, filepath.Join(base, "data", "~$b.xlsx"), 1)
	writeFile(t, filepath.Join(base, "data", "readme.md"), 1)
	writeFile(t, filepath.Join(base, "data", "nested", "c.csv"), 1)

	d := NewDiscovery(base)

	t.Run("relative", func(t *testing.T) {
		files, err := d.FindSeriesFiles("data")
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "a.csv", files[0].Name)
		assert.Equal(t, "b.xlsx", files[1].Name)
		assert.Equal(t, int64(4), files[1].Size)
		assert.Equal(t, filepath.Join(base, "data", "a.csv"), files[0].Path)
	})

	t.Run("absolute", func(t *testing.T) {
		files, err := NewDiscovery("/elsewhere").FindSeriesFiles(filepath.Join(base, "data"))
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := d.FindSeriesFiles("missing")
		assert.Error(t, err)
	})
}

func TestListDirectories(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "s1", "kalman"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "s2"), 0755))
	writeFile(t, filepath.Join(base, "file.csv"), 1)

	dirs, err := NewDiscovery("").ListDirectories(base)
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	for _, dir := range dirs {
		assert.True(t, dir.IsDir)
	}
}

func TestUsage(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "s1", "kalman", "result.csv"), 10)
	writeFile(t, filepath.Join(base, "s1", "kalman", "result.json"), 5)
	writeFile(t, filepath.Join(base, "s2", "moving_average", "summary.txt"), 7)

	d := NewDiscovery("")

	n, size, err := d.Usage(base)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(22), size)

	n, size, err = d.Usage(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, size)
}

func TestModifiedBefore(t *testing.T) {
	now := time.Now()
	files := []FileInfo{
		{Name: "old", ModTime: now.Add(-2 * time.Hour)},
		{Name: "new", ModTime: now.Add(-time.Minute)},
	}

	got := ModifiedBefore(files, now.Add(-time.Hour))
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].Name)
	assert.Empty(t, ModifiedBefore(nil, now))
}
