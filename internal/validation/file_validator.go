package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"filterfinder/internal/files"
)

// FileValidator checks series inputs and report destinations before a
// search runs
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator returns a validator logging to logger, or slog.Default when nil
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// reject logs msg at error level and returns err unchanged
func (v *FileValidator) reject(err error, msg string, attrs ...any) error {
	v.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	return err
}

// ValidateFile checks that path is an existing, readable, non-empty regular
// file
func (v *FileValidator) ValidateFile(path string) error {
	at := slog.String("file", path)

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return v.reject(fmt.Errorf("file %s does not exist", path), "Series file missing", at)
	case err != nil:
		return v.reject(fmt.Errorf("stat %s: %w", path, err), "Series file unreadable", at)
	case info.IsDir():
		return v.reject(fmt.Errorf("%s is a directory, not a file", path), "Series path is a directory", at)
	case info.Size() == 0:
		return v.reject(fmt.Errorf("file %s is empty", path), "Series file empty", at)
	}

	f, err := os.Open(path)
	if err != nil {
		return v.reject(fmt.Errorf("file %s is not readable: %w", path, err), "Series file unreadable", at)
	}
	f.Close()

	v.logger.Debug("Series file validated", at, slog.Int64("size", info.Size()))
	return nil
}

// ValidateSeriesFile checks that path is a loadable CSV or XLSX series
func (v *FileValidator) ValidateSeriesFile(path string) error {
	at := slog.String("file", path)
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return v.reject(fmt.Errorf("file %s is a temporary Excel file", path), "Excel lock file rejected", at)
	}
	if !files.IsSeriesFile(path) {
		ext := strings.ToLower(filepath.Ext(path))
		return v.reject(fmt.Errorf("file %s is not a CSV or XLSX file (extension: %s)", path, ext),
			"Unsupported series format", at, slog.String("extension", ext))
	}
	return v.ValidateFile(path)
}

// ValidateInputDirectory checks that dir exists and returns the series files
// it contains. An empty directory is an error.
func (v *FileValidator) ValidateInputDirectory(dir string) ([]files.FileInfo, error) {
	at := slog.String("directory", dir)

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return nil, v.reject(fmt.Errorf("input directory %s does not exist", dir), "Input directory missing", at)
	case err != nil:
		return nil, v.reject(fmt.Errorf("stat %s: %w", dir, err), "Input directory unreadable", at)
	case !info.IsDir():
		return nil, v.reject(fmt.Errorf("%s is not a directory", dir), "Input path is not a directory", at)
	}

	found, err := files.NewDiscovery("").FindSeriesFiles(dir)
	if err != nil {
		return nil, v.reject(err, "Input directory unreadable", at)
	}
	if len(found) == 0 {
		return nil, v.reject(fmt.Errorf("no CSV or XLSX files in %s", dir), "Input directory has no series", at)
	}

	v.logger.Info("Input directory validated", at, slog.Int("files_found", len(found)))
	return found, nil
}

// ValidateOutputDirectory creates dir if needed and checks it accepts writes
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	at := slog.String("directory", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return v.reject(fmt.Errorf("create output directory %s: %w", dir, err), "Output directory unusable", at)
	}
	if err := v.CheckWritable(dir); err != nil {
		return v.reject(err, "Output directory unusable", at)
	}
	v.logger.Debug("Output directory validated", at)
	return nil
}

// CheckWritable probes dir with a temporary file without creating dir
func (v *FileValidator) CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
