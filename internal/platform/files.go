package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// DefaultTempDirName is the directory created under os.TempDir for job directories
const DefaultTempDirName = "yt-download-proxy"

// File extensions to skip
var (
	SkippedExtensions = []string{".part", ".ytdl", ".tmp"}
)

// Content types by artifact extension
const (
	ContentTypeMP4    = "video/mp4"
	ContentTypeWebM   = "video/webm"
	ContentTypeMKV    = "video/x-matroska"
	ContentTypeBinary = "application/octet-stream"
)

var contentTypes = map[string]string{
	".mp4":  ContentTypeMP4,
	".webm": ContentTypeWebM,
	".mkv":  ContentTypeMKV,
}

// CreateDirectoryIfNotExists creates the directory and its parents if missing
func CreateDirectoryIfNotExists(dirPath string) error {
	return os.MkdirAll(dirPath, DefaultDirPermissions)
}

// DefaultTempDir returns the default root for job directories
func DefaultTempDir() string {
	return filepath.Join(os.TempDir(), DefaultTempDirName)
}

// IsPartialFile reports whether name is an in-progress download fragment
func IsPartialFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, skipped := range SkippedExtensions {
		if ext == skipped {
			return true
		}
	}
	return false
}

// FindArtifact returns the first regular file in dir whose name starts with
// prefix, ignoring partial downloads. Matches are sorted by name and merged
// outputs win over format fragments.
func FindArtifact(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || IsPartialFile(name) {
			continue
		}
		candidates = append(candidates, name)
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no file with prefix %q in %s", prefix, dir)
	}

	sort.Strings(candidates)
	for _, name := range candidates {
		if !IsFormatFragment(name) {
			return filepath.Join(dir, name), nil
		}
	}
	return filepath.Join(dir, candidates[0]), nil
}

// IsFormatFragment reports whether name is a single-format stream such as
// "id.f137.mp4" that yt-dlp writes before merging formats
func IsFormatFragment(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(base)
	if len(ext) < 3 || ext[1] != 'f' {
		return false
	}
	for _, r := range ext[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ContentTypeFor returns the MIME type of an artifact based on its extension
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return ContentTypeBinary
}
