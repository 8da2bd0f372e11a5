// Package index composes the search-and-index subsystem's components
// (fileaccess, classfile, symbols, store, textindex, refresh, watch)
// into the single Service the server/CLI front ends talk to, mirroring
// the teacher's own internal/indexing package's role of wiring its
// scanner, database, and index collaborators behind one facade
// (internal/indexing/pipeline.go's IndexingService).
package index

import (
	"context"
	"path/filepath"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/logging"
	"github.com/standardbeagle/lci/internal/model"
	"github.com/standardbeagle/lci/internal/querycache"
	"github.com/standardbeagle/lci/internal/refresh"
	"github.com/standardbeagle/lci/internal/store"
	"github.com/standardbeagle/lci/internal/symbols"
	"github.com/standardbeagle/lci/internal/textindex"
	"github.com/standardbeagle/lci/internal/watch"
)

// storeSchemaDir and index-1.0 are the on-disk version suffixes spec.md
// §6 calls for: a schema change abandons the older directory wholesale
// by incrementing this suffix rather than migrating in place.
const storeSchemaDir = "sql-1.0"
const storeFile = "db.sqlite"

// Service exposes exactly spec.md §6's external interface: refresh,
// the two search operations, find_unique, and the three listener
// hooks, hydrating every text-index ranking result against the
// relational store before returning it.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	index      *textindex.Index
	extractor  *symbols.Extractor
	coord      *refresh.Coordinator
	handler    *watch.Handler
	watcher    *watch.Watcher
	cache      *querycache.Cache
	logger     *logging.Logger
}

// Open wires every collaborator from cfg: the relational store and
// text index both live under cfg.CacheDir's versioned subdirectories,
// the extractor consults resolver for best-effort source mapping (nil
// is a valid "no resolver configured" value).
func Open(cfg *config.Config, resolver symbols.SourceResolver, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}

	st, err := store.Open(filepath.Join(cfg.CacheDir, storeSchemaDir, storeFile), logger)
	if err != nil {
		return nil, err
	}

	idx, err := textindex.Open(cfg.CacheDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	extractor := symbols.NewExtractor(resolver, logger)
	coord := refresh.New(st, idx, extractor, cfg, logger)
	handler := watch.NewHandler(st, idx, extractor, logger)
	cache := querycache.New(cfg.Performance.CacheEntries, secondsToDuration(cfg.Performance.CacheTTLSeconds))

	svc := &Service{
		cfg:       cfg,
		store:     st,
		index:     idx,
		extractor: extractor,
		coord:     coord,
		handler:   handler,
		cache:     cache,
		logger:    logger.WithComponent("index"),
	}

	if cfg.Index.WatchMode {
		w, err := watch.New(cfg, handler, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		svc.watcher = w
	}
	return svc, nil
}

// Close stops the watcher, if running, and releases the store's
// connection pool.
func (s *Service) Close() error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("watcher stop failed", logging.Fields{"error": err.Error()})
		}
	}
	return s.store.Close()
}

// StartWatching begins the background listener if watch mode is
// configured. A no-op otherwise.
func (s *Service) StartWatching() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Start()
}

// Refresh runs the four-phase reconciliation protocol and invalidates
// the query cache on any change, since a stale cached result would
// otherwise outlive the refresh that made it wrong.
func (s *Service) Refresh(ctx context.Context) (deleted, indexed int, err error) {
	deleted, indexed, err = s.coord.Refresh(ctx)
	if deleted > 0 || indexed > 0 {
		s.cache.InvalidateAll()
	}
	return deleted, indexed, err
}

// OnClassfileAdded, OnClassfileRemoved, and OnClassfileChanged delegate
// to the watch.Handler and invalidate the query cache, for callers
// (e.g. an IDE plugin) driving the listener directly instead of through
// Service's own Watcher.
func (s *Service) OnClassfileAdded(path string) error {
	defer s.cache.InvalidateAll()
	return s.handler.OnAdded(path)
}

func (s *Service) OnClassfileRemoved(path string) error {
	defer s.cache.InvalidateAll()
	return s.handler.OnRemoved(path)
}

func (s *Service) OnClassfileChanged(path string) error {
	defer s.cache.InvalidateAll()
	return s.handler.OnChanged(path)
}

// SearchClasses ranks class documents against query, hydrates the
// matching keys against the relational store, and returns them in
// ranked order. Results are cached per (query, max).
func (s *Service) SearchClasses(query string, max int) ([]model.FqnSymbol, error) {
	cacheKey := "classes:" + query + ":" + itoa(max)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]model.FqnSymbol), nil
	}

	keys := s.index.SearchClasses(query, max)
	results, err := s.hydrate(keys)
	if err != nil {
		return nil, err
	}
	s.cache.Put(cacheKey, results)
	return results, nil
}

// SearchClassesFieldsMethods splits query into whitespace-separated
// words and ranks class/method documents under AND conjunction across
// every word, per spec.md §6. ("fields" in the operation's name
// reflects that a field-owning class can still surface via its class
// document; individual field records are never independently
// searchable, per spec.md §4.E.)
func (s *Service) SearchClassesFieldsMethods(query string, max int) ([]model.FqnSymbol, error) {
	cacheKey := "methods:" + query + ":" + itoa(max)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]model.FqnSymbol), nil
	}

	words := splitWords(query)
	keys := s.index.SearchClassesMethods(words, max)
	results, err := s.hydrate(keys)
	if err != nil {
		return nil, err
	}
	s.cache.Put(cacheKey, results)
	return results, nil
}

// FindUnique hydrates a single FQN's symbol directly from the
// relational store, bypassing the text index entirely.
func (s *Service) FindUnique(fqn string) (*model.FqnSymbol, error) {
	return s.store.Find(fqn)
}

func (s *Service) hydrate(keys []textindex.FqnKey) ([]model.FqnSymbol, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	fqns := make([]string, len(keys))
	for i, k := range keys {
		fqns[i] = k.Fqn
	}
	return s.store.FindMany(fqns)
}
