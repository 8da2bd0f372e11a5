// Package symbols applies visibility and ignore filters to a parsed
// class, resolves its source artifact through the external source
// resolver, builds a line-to-byte-offset table, and emits the ordered
// stream of symbol records the relational store and text index both
// consume.
package symbols

import (
	"bytes"

	"github.com/standardbeagle/lci/internal/classfile"
	lciErrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/fileaccess"
	"github.com/standardbeagle/lci/internal/logging"
	"github.com/standardbeagle/lci/internal/model"
)

// SourceResolver maps a package + source filename pair to a readable
// source artifact. Declining to resolve (returning a nil ref and nil
// error) is not an error: the extractor simply leaves source fields
// unset on every emitted record.
type SourceResolver interface {
	Resolve(pkg, sourceName string) (fileaccess.FileRef, error)
}

// Extractor runs the six-step extraction algorithm over one class
// entry, optionally consulting a SourceResolver for best-effort source
// pointers.
type Extractor struct {
	resolver SourceResolver
	logger   *logging.Logger
}

// NewExtractor creates an Extractor. A nil resolver disables source
// resolution entirely; every emitted record then carries no SourceURI.
// A nil logger uses the package default.
func NewExtractor(resolver SourceResolver, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{resolver: resolver, logger: logger.WithComponent("symbols")}
}

// Extract implements extract(container, entry) -> [FqnSymbol]. entryPath
// is the archive-internal path for blacklist checking, or "" for a
// loose class file.
func (x *Extractor) Extract(containerURI, entryURI, entryPath string, classBytes []byte) ([]model.FqnSymbol, error) {
	if entryPath != "" && model.IsBlacklisted(entryPath) {
		return nil, nil
	}

	parsed, err := classfile.Parse(classBytes)
	if err != nil {
		return nil, lciErrors.NewParseError(entryURI, 0, err)
	}

	if parsed.Access != model.AccessPublic {
		return nil, nil
	}

	sourceURI, offsets := x.resolveSource(parsed)

	fqn := model.FQN(parsed.InternalName)
	var records []model.FqnSymbol

	classRecord := model.FqnSymbol{
		ContainerURI: containerURI,
		EntryURI:     entryURI,
		Fqn:          fqn,
		SourceURI:    sourceURI,
		Line:         parsed.SourceLine,
		Offset:       offsetFor(parsed.SourceLine, offsets),
	}
	if !model.HasIgnoredFragment(classRecord.Fqn) {
		records = append(records, classRecord)
	}

	for _, m := range parsed.Methods {
		if m.Access != model.AccessPublic {
			continue
		}
		rec := model.FqnSymbol{
			ContainerURI: containerURI,
			EntryURI:     entryURI,
			Fqn:          fqn + "." + m.Name,
			Descriptor:   m.Descriptor,
			SourceURI:    sourceURI,
			Line:         m.Line,
			Offset:       offsetFor(m.Line, offsets),
		}
		if !model.HasIgnoredFragment(rec.Fqn) {
			records = append(records, rec)
		}
	}

	for _, f := range parsed.Fields {
		if f.Access != model.AccessPublic {
			continue
		}
		rec := model.FqnSymbol{
			ContainerURI: containerURI,
			EntryURI:     entryURI,
			Fqn:          fqn + "." + f.Name,
			Internal:     parsed.InternalName,
			SourceURI:    sourceURI,
		}
		if !model.HasIgnoredFragment(rec.Fqn) {
			records = append(records, rec)
		}
	}

	return records, nil
}

// resolveSource asks the configured SourceResolver for the class's
// source artifact and, if found, builds its line-offset table. A
// missing table (no resolver, decline, or read failure) yields a nil
// slice; offsetFor then leaves every record's Offset unset. Per
// spec.md §7, a real resolver error is local: logged at debug and the
// class's source fields are simply left unset, not propagated — a
// class whose source can't be located is still worth indexing by FQN.
func (x *Extractor) resolveSource(parsed *model.ParsedClass) (sourceURI string, offsets []int) {
	if x.resolver == nil || parsed.SourceName == "" {
		return "", nil
	}

	pkg := packageOf(parsed.InternalName)
	ref, err := x.resolver.Resolve(pkg, parsed.SourceName)
	if err != nil {
		resolveErr := lciErrors.NewResolveError(pkg, parsed.SourceName, err)
		x.logger.Debug("source resolution declined", logging.Fields{"error": resolveErr.Error()})
		return "", nil
	}
	if ref == nil {
		return "", nil
	}

	data, err := ref.ReadBytes()
	if err != nil {
		return ref.URI(), nil
	}

	return ref.URI(), lineOffsetTable(data)
}

// lineOffsetTable builds a byte-offset-per-line table: index 0 is byte
// 0, each subsequent entry is the byte index of the nth '\n'.
func lineOffsetTable(source []byte) []int {
	offsets := []int{0}
	idx := 0
	for {
		next := bytes.IndexByte(source[idx:], '\n')
		if next == -1 {
			break
		}
		offsets = append(offsets, idx+next)
		idx += next + 1
	}
	return offsets
}

// offsetFor converts a 1-based source line to its byte offset using a
// table built by lineOffsetTable. Returns nil if no line, no table, or
// the line falls outside the table's range.
func offsetFor(line *int, offsets []int) *int {
	if line == nil || offsets == nil {
		return nil
	}
	idx := *line - 1
	if idx < 0 || idx >= len(offsets) {
		return nil
	}
	offset := offsets[idx]
	return &offset
}

func packageOf(internalName string) string {
	i := -1
	for j := len(internalName) - 1; j >= 0; j-- {
		if internalName[j] == '/' {
			i = j
			break
		}
	}
	if i == -1 {
		return ""
	}
	return internalName[:i]
}
