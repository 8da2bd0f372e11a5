// Package store is the durable relational layer: file fingerprints and
// symbol records, backed by modernc.org/sqlite (pure-Go, CGo-free)
// through the standard database/sql interface. Every operation is its
// own transaction; bulk work batches through a single transaction with
// prepared statements, following the teacher pack's incremental-update
// idiom of wrapping multi-row writes in db.WithTx.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	lciErrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/logging"
	"github.com/standardbeagle/lci/internal/model"

	_ "modernc.org/sqlite"
)

// removeBatchSize bounds how many files are deleted per transaction,
// trading per-row overhead against lock hold time.
const removeBatchSize = 100

const schema = `
CREATE TABLE IF NOT EXISTS file_checks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT UNIQUE NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fqn_symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	container TEXT NOT NULL,
	entry TEXT NOT NULL,
	fqn TEXT NOT NULL,
	descriptor TEXT NOT NULL DEFAULT '',
	internal TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	line INTEGER,
	offset INTEGER,
	UNIQUE(fqn, descriptor, internal)
);

CREATE INDEX IF NOT EXISTS idx_fqn_symbols_fqn ON fqn_symbols(fqn);
CREATE INDEX IF NOT EXISTS idx_fqn_symbols_container ON fqn_symbols(container);
`

// Store owns the sql-1.0 directory's db.* files.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. The connection pool is capped the way the
// teacher pack's sqlite consumers size theirs: a handful of connections
// is enough for a writer-serialized embedded database.
func Open(path string, logger *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, lciErrors.NewDbOperationalError("open", err)
	}
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, lciErrors.NewDbOperationalError("migrate", err)
	}

	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger.WithComponent("store")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error fn returns.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return lciErrors.NewDbOperationalError("begin", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return lciErrors.NewDbOperationalError("commit", err)
	}
	return nil
}

// KnownFiles returns every stored fingerprint.
func (s *Store) KnownFiles() ([]model.FileFingerprint, error) {
	rows, err := s.db.Query(`SELECT filename, timestamp FROM file_checks`)
	if err != nil {
		return nil, lciErrors.NewDbOperationalError("known_files", err)
	}
	defer rows.Close()

	var checks []model.FileFingerprint
	for rows.Next() {
		var fp model.FileFingerprint
		if err := rows.Scan(&fp.FileURI, &fp.LastModified); err != nil {
			return nil, lciErrors.NewDbOperationalError("known_files scan", err)
		}
		checks = append(checks, fp)
	}
	return checks, rows.Err()
}

// OutOfDate reports whether no fingerprint exists for uri or the
// stored timestamp is strictly older than currentLastModified.
func (s *Store) OutOfDate(uri string, currentLastModified int64) (bool, error) {
	var stored int64
	err := s.db.QueryRow(`SELECT timestamp FROM file_checks WHERE filename = ?`, uri).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, lciErrors.NewDbOperationalError("out_of_date", err)
	}
	return stored < currentLastModified, nil
}

// Persist inserts the fingerprint and bulk-inserts its symbols in one
// transaction. A unique-constraint violation on an individual symbol
// row is logged and swallowed rather than aborting the whole batch —
// malformed input occasionally yields duplicate FQN triples and a
// listener can legitimately race a refresh onto the same row.
func (s *Store) Persist(check model.FileFingerprint, symbols []model.FqnSymbol) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO file_checks (filename, timestamp) VALUES (?, ?)
			 ON CONFLICT(filename) DO UPDATE SET timestamp = excluded.timestamp`,
			check.FileURI, check.LastModified,
		); err != nil {
			return lciErrors.NewDbOperationalError("persist file_checks", err)
		}

		stmt, err := tx.Prepare(
			`INSERT INTO fqn_symbols (container, entry, fqn, descriptor, internal, source, line, offset)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return lciErrors.NewDbOperationalError("prepare fqn_symbols insert", err)
		}
		defer stmt.Close()

		for _, sym := range symbols {
			_, err := stmt.Exec(sym.ContainerURI, sym.EntryURI, sym.Fqn, sym.Descriptor, sym.Internal,
				sym.SourceURI, nullableInt(sym.Line), nullableInt(sym.Offset))
			if err != nil {
				if isUniqueConstraintErr(err) {
					s.logger.Warn("duplicate symbol triple, skipping", logging.Fields{
						"fqn": sym.Fqn, "descriptor": sym.Descriptor, "internal": sym.Internal,
					})
					continue
				}
				return lciErrors.NewDbOperationalError("persist fqn_symbols", err)
			}
		}
		return nil
	})
}

// RemoveFiles deletes every symbol row and fingerprint whose container/
// filename is in files, batching in groups of removeBatchSize.
func (s *Store) RemoveFiles(files []string) error {
	for i := 0; i < len(files); i += removeBatchSize {
		end := min(i+removeBatchSize, len(files))
		batch := files[i:end]
		if err := s.removeBatch(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removeBatch(batch []string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]interface{}, len(batch))
		for i, f := range batch {
			args[i] = f
		}

		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM fqn_symbols WHERE container IN (%s)`, placeholders), args...); err != nil {
			return lciErrors.NewDbOperationalError("remove fqn_symbols", err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM file_checks WHERE filename IN (%s)`, placeholders), args...); err != nil {
			return lciErrors.NewDbOperationalError("remove file_checks", err)
		}
		return nil
	})
}

// Find returns the single record for fqn, or nil if none exists.
func (s *Store) Find(fqn string) (*model.FqnSymbol, error) {
	row := s.db.QueryRow(
		`SELECT id, container, entry, fqn, descriptor, internal, source, line, offset
		 FROM fqn_symbols WHERE fqn = ? LIMIT 1`, fqn)
	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, lciErrors.NewDbOperationalError("find", err)
	}
	return sym, nil
}

// FindMany returns at most one record per FQN in fqns, preserving input
// order; duplicate FQNs in the input collapse to a single output.
func (s *Store) FindMany(fqns []string) ([]model.FqnSymbol, error) {
	seen := make(map[string]bool, len(fqns))
	var ordered []string
	for _, f := range fqns {
		if !seen[f] {
			seen[f] = true
			ordered = append(ordered, f)
		}
	}
	if len(ordered) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ordered)), ",")
	args := make([]interface{}, len(ordered))
	for i, f := range ordered {
		args[i] = f
	}

	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT id, container, entry, fqn, descriptor, internal, source, line, offset
		 FROM fqn_symbols WHERE fqn IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, lciErrors.NewDbOperationalError("find_many", err)
	}
	defer rows.Close()

	byFqn := make(map[string]model.FqnSymbol, len(ordered))
	for rows.Next() {
		sym, err := scanSymbolRows(rows)
		if err != nil {
			return nil, lciErrors.NewDbOperationalError("find_many scan", err)
		}
		if _, exists := byFqn[sym.Fqn]; !exists {
			byFqn[sym.Fqn] = sym
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lciErrors.NewDbOperationalError("find_many rows", err)
	}

	results := make([]model.FqnSymbol, 0, len(ordered))
	for _, f := range ordered {
		if sym, ok := byFqn[f]; ok {
			results = append(results, sym)
		}
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSymbol(row *sql.Row) (*model.FqnSymbol, error) {
	sym, err := scanInto(row)
	if err != nil {
		return nil, err
	}
	return &sym, nil
}

func scanSymbolRows(rows *sql.Rows) (model.FqnSymbol, error) {
	return scanInto(rows)
}

func scanInto(s rowScanner) (model.FqnSymbol, error) {
	var sym model.FqnSymbol
	var line, offset sql.NullInt64
	err := s.Scan(&sym.ID, &sym.ContainerURI, &sym.EntryURI, &sym.Fqn, &sym.Descriptor, &sym.Internal,
		&sym.SourceURI, &line, &offset)
	if err != nil {
		return model.FqnSymbol{}, err
	}
	if line.Valid {
		l := int(line.Int64)
		sym.Line = &l
	}
	if offset.Valid {
		o := int(offset.Int64)
		sym.Offset = &o
	}
	return sym, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
