package validation

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterfinder/internal/shared/testutil"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileValidator_ValidateSeriesFile(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		wantErr       bool
		errorContains string
	}{
		{
			name: "csv",
			setupFunc: func(t *testing.T) string {
				return writeFile(t, filepath.Join(t.TempDir(), "prices.csv"), "date,close\n2024-01-01,1\n")
			},
		},
		{
			name: "xlsx",
			setupFunc: func(t *testing.T) string {
				return writeFile(t, filepath.Join(t.TempDir(), "prices.xlsx"), "PK")
			},
		},
		{
			name: "temporary excel file",
			setupFunc: func(t *testing.T) string {
				return writeFile(t, filepath.Join(t.TempDir(), "~$prices.xlsx"), "PK")
			},
			wantErr:       true,
			errorContains: "temporary",
		},
		{
			name: "unsupported extension",
			setupFunc: func(t *testing.T) string {
				return writeFile(t, filepath.Join(t.TempDir(), "prices.txt"), "1\n")
			},
			wantErr:       true,
			errorContains: "not a CSV or XLSX file",
		},
		{
			name: "empty file",
			setupFunc: func(t *testing.T) string {
				return writeFile(t, filepath.Join(t.TempDir(), "prices.csv"), "")
			},
			wantErr:       true,
			errorContains: "is empty",
		},
		{
			name: "missing file",
			setupFunc: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.csv")
			},
			wantErr:       true,
			errorContains: "does not exist",
		},
		{
			name: "directory with series extension",
			setupFunc: func(t *testing.T) string {
				dir := filepath.Join(t.TempDir(), "dir.csv")
				require.NoError(t, os.Mkdir(dir, 0755))
				return dir
			},
			wantErr:       true,
			errorContains: "is a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			validator := NewFileValidator(logger)

			err := validator.ValidateSeriesFile(tt.setupFunc(t))

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileValidator_ValidateInputDirectory(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		wantFiles     []string
		errorContains string
	}{
		{
			name: "series files",
			setupFunc: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, filepath.Join(dir, "b.xlsx"), "PK")
				writeFile(t, filepath.Join(dir, "a.csv"), "1")
				writeFile(t, filepath.Join(dir, "notes.txt"), "x")
				return dir
			},
			wantFiles: []string{"a.csv", "b.xlsx"},
		},
		{
			name: "no series files",
			setupFunc: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, filepath.Join(dir, "notes.txt"), "x")
				return dir
			},
			errorContains: "no CSV or XLSX files",
		},
		{
			name: "missing directory",
			setupFunc: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing")
			},
			errorContains: "does not exist",
		},
		{
			name: "path is a file",
			setupFunc: func(t *testing.T) string {
				return writeFile(t, filepath.Join(t.TempDir(), "a.csv"), "1")
			},
			errorContains: "not a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewFileValidator(nil)

			found, err := validator.ValidateInputDirectory(tt.setupFunc(t))

			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, f := range found {
				names = append(names, f.Name)
			}
			assert.Equal(t, tt.wantFiles, names)
		})
	}
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	t.Run("created when missing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "new", "nested")

		require.NoError(t, NewFileValidator(nil).ValidateOutputDirectory(dir))

		assert.DirExists(t, dir)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "write probe is removed")
	})

	t.Run("path is a file", func(t *testing.T) {
		file := writeFile(t, filepath.Join(t.TempDir(), "taken"), "x")

		err := NewFileValidator(nil).ValidateOutputDirectory(file)

		assert.Error(t, err)
	})
}

func TestFileValidator_CheckWritable(t *testing.T) {
	v := NewFileValidator(nil)
	dir := t.TempDir()

	require.NoError(t, v.CheckWritable(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	missing := filepath.Join(dir, "reports")
	assert.Error(t, v.CheckWritable(missing))
	assert.NoDirExists(t, missing, "never creates the directory")

	file := writeFile(t, filepath.Join(dir, "taken"), "x")
	assert.ErrorContains(t, v.CheckWritable(file), "not a directory")
}

func TestFileValidator_LogsRejection(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "prices.txt"), "1\n")

	require.Error(t, NewFileValidator(logger).ValidateSeriesFile(path))

	testutil.AssertLogContains(t, handler, slog.LevelError, "Unsupported series format")
	testutil.AssertLogAttr(t, handler, "extension", ".txt")
}
