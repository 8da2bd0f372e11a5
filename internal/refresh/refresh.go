// Package refresh implements the four-phase reconciliation protocol:
// a synchronous diff against the relational store's fingerprints,
// followed by three asynchronous phases (batched deletes, then index
// jobs, then a single text-index commit). The worker pool is an
// golang.org/x/sync/errgroup-bounded goroutine pool rather than a
// hand-rolled semaphore, following the teacher's own channel-fed
// worker-pool convention in internal/indexing/pipeline_integrator.go
// generalized from a WaitGroup to errgroup's SetLimit.
package refresh

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/fileaccess"
	"github.com/standardbeagle/lci/internal/logging"
	"github.com/standardbeagle/lci/internal/model"
	"github.com/standardbeagle/lci/internal/store"
	"github.com/standardbeagle/lci/internal/symbols"
	"github.com/standardbeagle/lci/internal/textindex"
	"golang.org/x/sync/errgroup"
)

// removeBatchSize matches the relational store's own batching; the
// spec requires partitioning stale URIs into batches of 100 before
// submitting delete jobs.
const removeBatchSize = 100

type baseKind int

const (
	baseLoose baseKind = iota
	baseArchive
)

// base is one unit the coordinator tracks for staleness/indexing: a
// single loose class file, or a whole jar (walked internally during
// indexing, fingerprinted as one file).
type base struct {
	uri          string
	lastModified int64
	kind         baseKind
	loose        fileaccess.FileRef
	archivePath  string
}

// Coordinator owns one refresh cycle's collaborators: the relational
// store, the text index, the symbol extractor, and the module/jar
// configuration that defines this refresh's universe of bases.
type Coordinator struct {
	store     *store.Store
	index     *textindex.Index
	extractor *symbols.Extractor
	cfg       *config.Config
	logger    *logging.Logger
}

// New builds a Coordinator from its collaborators. A nil logger uses
// the package default.
func New(st *store.Store, idx *textindex.Index, extractor *symbols.Extractor, cfg *config.Config, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{store: st, index: idx, extractor: extractor, cfg: cfg, logger: logger.WithComponent("refresh")}
}

// Refresh runs all four phases and returns (deleted, indexed) counts,
// per spec.md §4.F. It never returns an error for per-file failures —
// those are logged and skipped so the process always makes forward
// progress; only a failure to even enumerate bases or read known
// fingerprints is returned, since nothing else can proceed without it,
// plus a failure of the final text-index commit, which is returned
// together with the counts.
func (c *Coordinator) Refresh(ctx context.Context) (deleted, indexed int, err error) {
	known, err := c.store.KnownFiles()
	if err != nil {
		return 0, 0, err
	}

	bases, err := c.enumerateBases()
	if err != nil {
		return 0, 0, err
	}
	basesByURI := make(map[string]base, len(bases))
	for _, b := range bases {
		basesByURI[b.uri] = b
	}
	knownByURI := make(map[string]bool, len(known))
	for _, fp := range known {
		knownByURI[fp.FileURI] = true
	}

	var stale []string
	for _, fp := range known {
		if _, configured := basesByURI[fp.FileURI]; !configured {
			stale = append(stale, fp.FileURI)
		}
	}

	var toIndex []base
	for uri, b := range basesByURI {
		ood, err := c.store.OutOfDate(uri, b.lastModified)
		if err != nil {
			c.logger.Warn("out_of_date check failed, skipping base", logging.Fields{"uri": uri, "error": err.Error()})
			continue
		}
		if ood {
			// A URI that already has a fingerprint is a modified file,
			// not a new one: its old symbol rows must be deleted before
			// the re-index job runs, or renamed/removed methods and
			// fields would survive Persist's insert-only write.
			if knownByURI[uri] {
				stale = append(stale, uri)
			}
			toIndex = append(toIndex, b)
		}
	}

	deleted = c.runDeletePhase(ctx, stale)
	indexed = c.runIndexPhase(ctx, toIndex)

	if err := c.index.Commit(); err != nil {
		return deleted, indexed, err
	}
	return deleted, indexed, nil
}

// runDeletePhase removes every stale batch from the text index, then
// the relational store, before any index job is allowed to start —
// the ordering spec.md §4.F requires to avoid an insert/delete race on
// the unique constraint.
func (c *Coordinator) runDeletePhase(ctx context.Context, stale []string) int {
	if len(stale) == 0 {
		return 0
	}

	var removed atomic.Int64
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(c.workerLimit())

	for i := 0; i < len(stale); i += removeBatchSize {
		end := min(i+removeBatchSize, len(stale))
		batch := stale[i:end]
		group.Go(func() error {
			c.index.Remove(batch)
			if err := c.store.RemoveFiles(batch); err != nil {
				c.logger.Error("delete batch failed, skipping", logging.Fields{"size": len(batch), "error": err.Error()})
				return nil
			}
			removed.Add(int64(len(batch)))
			return nil
		})
	}
	group.Wait()
	return int(removed.Load())
}

// runIndexPhase submits one job per base in toIndex, parsing,
// extracting, and persisting to both stores. A single job's failure
// is logged and swallowed; other jobs continue per spec.md §5's
// failure-isolation requirement.
func (c *Coordinator) runIndexPhase(ctx context.Context, toIndex []base) int {
	if len(toIndex) == 0 {
		return 0
	}

	var succeeded atomic.Int64
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(c.workerLimit())

	for _, b := range toIndex {
		group.Go(func() error {
			if err := c.indexBase(b); err != nil {
				c.logger.Warn("index job failed, skipping", logging.Fields{"uri": b.uri, "error": err.Error()})
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	group.Wait()
	return int(succeeded.Load())
}

func (c *Coordinator) workerLimit() int {
	if c.cfg != nil && c.cfg.Performance.MaxGoroutines > 0 {
		return c.cfg.Performance.MaxGoroutines
	}
	return 4
}

func (c *Coordinator) indexBase(b base) error {
	switch b.kind {
	case baseLoose:
		return c.indexLoose(b)
	case baseArchive:
		return c.indexArchive(b)
	default:
		return nil
	}
}

func (c *Coordinator) indexLoose(b base) error {
	data, err := b.loose.ReadBytes()
	if err != nil {
		c.logger.Warn("read failed, file will be retried next refresh", logging.Fields{"uri": b.uri, "error": err.Error()})
		return nil
	}

	syms, err := c.extractor.Extract(b.uri, b.loose.URI(), "", data)
	if err != nil {
		c.logger.Warn("parse failed, skipping", logging.Fields{"uri": b.uri, "error": err.Error()})
		syms = nil
	}

	fp := model.FileFingerprint{FileURI: b.uri, LastModified: b.lastModified}
	if err := c.store.Persist(fp, syms); err != nil {
		return err
	}
	c.index.Add(b.uri, syms)
	return nil
}

func (c *Coordinator) indexArchive(b base) error {
	entries, err := fileaccess.WalkClassEntries(b.archivePath)
	if err != nil {
		c.logger.Warn("archive open failed, file will be retried next refresh", logging.Fields{"uri": b.uri, "error": err.Error()})
		return nil
	}

	var all []model.FqnSymbol
	for _, entry := range entries {
		data, err := entry.ReadBytes()
		if err != nil {
			c.logger.Debug("entry read failed, skipping entry", logging.Fields{"uri": entry.URI(), "error": err.Error()})
			continue
		}
		syms, err := c.extractor.Extract(b.uri, entry.URI(), entry.PathWithinArchive(), data)
		if err != nil {
			c.logger.Debug("entry parse failed, skipping entry", logging.Fields{"uri": entry.URI(), "error": err.Error()})
			continue
		}
		all = append(all, syms...)
	}

	fp := model.FileFingerprint{FileURI: b.uri, LastModified: b.lastModified}
	if err := c.store.Persist(fp, all); err != nil {
		return err
	}
	c.index.Add(b.uri, all)
	return nil
}

// enumerateBases walks every module's target/test directories for
// loose class files and resolves every configured jar (compile, test,
// and the platform java_lib) to an archive base.
func (c *Coordinator) enumerateBases() ([]base, error) {
	var bases []base

	for _, name := range c.sortedModuleNames() {
		mod := c.cfg.Modules[name]
		for _, dir := range append(append([]string{}, mod.TargetDirs...), mod.TestTargetDirs...) {
			refs, err := fileaccess.WalkDirectoryClassFiles(dir, mod.Exclude)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				bases = append(bases, base{uri: ref.URI(), lastModified: ref.LastModified(), kind: baseLoose, loose: ref})
			}
		}
	}

	jars := c.cfg.AllJars()
	if c.cfg.JavaLib != "" {
		jars = append(jars, c.cfg.JavaLib)
	}
	for _, jar := range jars {
		info, err := os.Stat(jar)
		if err != nil {
			continue // configured jar missing on disk: not a base, any stale fingerprint for it is swept up normally
		}
		bases = append(bases, base{
			uri:          fileaccess.ArchiveURI(jar),
			lastModified: info.ModTime().UnixMilli(),
			kind:         baseArchive,
			archivePath:  filepath.Clean(jar),
		})
	}

	return bases, nil
}

func (c *Coordinator) sortedModuleNames() []string {
	names := make([]string, 0, len(c.cfg.Modules))
	for name := range c.cfg.Modules {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
