// Package ingest discovers study documents on disk and feeds them to
// the retrieval service.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxFileSize is the maximum document size to ingest (1 MB).
const DefaultMaxFileSize int64 = 1 << 20

// DefaultIncludes matches the document formats worth indexing when no
// include patterns are given.
var DefaultIncludes = []string{"**/*.md", "**/*.markdown", "**/*.txt", "**/*.rst", "**/*.org"}

// DefaultExcludes are directory names skipped during traversal.
var DefaultExcludes = []string{
	".git",
	".obsidian",
	".trash",
	"node_modules",
	".idea",
	".vscode",
	".DS_Store",
}

// Document holds metadata about a single study document discovered
// during traversal. ID is derived from the relative path, so it stays
// stable when the content changes.
type Document struct {
	ID      string // Stable identifier derived from RelPath.
	Path    string // Absolute path on disk.
	RelPath string // Path relative to the root directory.
	Title   string // Filename without extension, for display.
	Size    int64  // Document size in bytes.
}

// Config controls the behaviour of the Discover function.
type Config struct {
	RootDir     string   // Root directory to walk.
	Include     []string // Glob patterns; only matching files are included.
	Exclude     []string // Glob patterns; matching files are excluded.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
}

// Discover traverses the directory tree rooted at config.RootDir and
// returns metadata for every document that passes filtering. It skips
// binary files, respects include/exclude patterns, and honours a root
// .gitignore.
func Discover(config Config) ([]Document, error) {
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve root: %w", err)
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	include := config.Include
	if len(include) == 0 {
		include = DefaultIncludes
	}

	gitignorePatterns := loadGitignore(filepath.Join(root, ".gitignore"))

	var docs []Document

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip entries we cannot read instead of aborting.
			return nil
		}

		name := d.Name()

		if d.IsDir() {
			if shouldExcludeDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if matchesGitignore(relPath, gitignorePatterns) {
			return nil
		}
		if !matchesAny(relPath, include) {
			return nil
		}
		if len(config.Exclude) > 0 && matchesAny(relPath, config.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		rel := filepath.ToSlash(relPath)
		docs = append(docs, Document{
			ID:      DocumentID(rel),
			Path:    path,
			RelPath: rel,
			Title:   titleFromPath(rel),
			Size:    info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("ingest: traversal: %w", err)
	}

	return docs, nil
}

// DocumentID derives a stable document identifier from a relative path.
func DocumentID(relPath string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(relPath)))
	return "doc-" + hex.EncodeToString(sum[:6])
}

func titleFromPath(relPath string) string {
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func shouldExcludeDir(name string) bool {
	for _, excl := range DefaultExcludes {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

// matchesAny checks if relPath matches any of the given glob patterns.
// Patterns go through doublestar for ** support; a pattern may also
// match the bare filename.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)

		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}

		base := filepath.Base(normalized)
		if matched, err := doublestar.PathMatch(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// isBinary reads the first 512 bytes of a file and checks for NUL bytes,
// which is a simple but effective heuristic for binary content.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true // treat unreadable files as binary
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}

	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}
	return false
}

// loadGitignore reads a .gitignore file and returns its non-empty,
// non-comment lines as patterns.
func loadGitignore(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesGitignore checks if a relative path matches any gitignore pattern.
func matchesGitignore(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)

		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimSuffix(pattern, "/")

		if !strings.Contains(pattern, "/") {
			// Match any path component. A non-final component is a
			// directory, so directory-only patterns apply to it.
			parts := strings.Split(normalized, "/")
			for i, part := range parts {
				if matched, _ := filepath.Match(pattern, part); matched {
					if i < len(parts)-1 || !dirOnly {
						return true
					}
				}
			}
		} else {
			if matched, _ := filepath.Match(pattern, normalized); matched {
				return true
			}
		}
	}
	return false
}
