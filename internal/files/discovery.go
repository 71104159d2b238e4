package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// seriesExtensions are the tabular formats timeseries.LoadFile reads
var seriesExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xlsm": true,
}

// FileInfo is a discovered series file or report directory
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Discovery finds series inputs and report directories below a base path
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// IsSeriesFile reports whether name has a loadable extension and is not an
// Excel lock file
func IsSeriesFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		return false
	}
	return seriesExtensions[strings.ToLower(filepath.Ext(base))]
}

// FindSeriesFiles lists the CSV and XLSX files directly inside dir, sorted
// by name
func (d *Discovery) FindSeriesFiles(dir string) ([]FileInfo, error) {
	found, err := d.scan(dir, func(e os.DirEntry) bool {
		return !e.IsDir() && IsSeriesFile(e.Name())
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// ListDirectories lists the immediate subdirectories of dir
func (d *Discovery) ListDirectories(dir string) ([]FileInfo, error) {
	return d.scan(dir, os.DirEntry.IsDir)
}

// scan stats the entries of dir accepted by keep. Entries that vanish
// between listing and stat are skipped.
func (d *Discovery) scan(dir string, keep func(os.DirEntry) bool) ([]FileInfo, error) {
	root := d.resolve(dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", root, err)
	}

	var out []FileInfo
	for _, e := range entries {
		if !keep(e) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fi := FileInfo{
			Path:    filepath.Join(root, e.Name()),
			Name:    e.Name(),
			ModTime: info.ModTime(),
			IsDir:   e.IsDir(),
		}
		if !fi.IsDir {
			fi.Size = info.Size()
		}
		out = append(out, fi)
	}
	return out, nil
}

// Usage counts the regular files below dir and their total size. A missing
// dir is empty.
func (d *Discovery) Usage(dir string) (files int, bytes int64, err error) {
	fullPath := d.resolve(dir)

	err = filepath.WalkDir(fullPath, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == fullPath {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walk %s: %w", fullPath, err)
	}
	return files, bytes, nil
}

// ModifiedBefore returns the entries last modified before cutoff
func ModifiedBefore(files []FileInfo, cutoff time.Time) []FileInfo {
	var stale []FileInfo
	for _, f := range files {
		if f.ModTime.Before(cutoff) {
			stale = append(stale, f)
		}
	}
	return stale
}
