// Package pathutil converts between the absolute file:// URIs the
// indexer stores internally and the relative paths a terminal user
// wants to see.
//
// Architecture pattern: the index uses absolute file:// URIs internally
// for consistency (the same class file reached via two different
// relative paths must still collapse to one fingerprint), but CLI
// output should show paths relative to the project root for
// readability. This package is the conversion layer between the two.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/lci/internal/model"
)

// ToRelative converts a file:// URI (or a plain path) to a path
// relative to rootDir. Falls back to the original string if the URI
// isn't a file:// URI, conversion fails, or the path lies outside
// rootDir — in each case the absolute/raw form is still unambiguous.
func ToRelative(uri, rootDir string) string {
	if uri == "" || rootDir == "" {
		return uri
	}

	path := strings.TrimPrefix(uri, "file://")
	if !filepath.IsAbs(path) {
		return uri
	}

	path = filepath.Clean(path)
	rootDir = filepath.Clean(rootDir)

	rel, err := filepath.Rel(rootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return uri
	}
	return rel
}

// ToRelativeSymbols returns a copy of symbols with every SourceURI
// converted to a path relative to rootDir, the form the CLI's
// text-output mode prints; the input slice is not modified. ContainerURI and EntryURI are left untouched since they
// identify jar entries, not filesystem paths a user would navigate to.
func ToRelativeSymbols(symbols []model.FqnSymbol, rootDir string) []model.FqnSymbol {
	converted := make([]model.FqnSymbol, len(symbols))
	copy(converted, symbols)
	for i := range converted {
		if converted[i].SourceURI != "" {
			converted[i].SourceURI = ToRelative(converted[i].SourceURI, rootDir)
		}
	}
	return converted
}
