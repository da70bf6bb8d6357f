// Package store persists compiled programs in a content-addressed SQLite
// database. Programs are keyed by the hex form of their image checksum,
// so saving the same program twice is idempotent.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/minnowlang/minnow/image"
	"github.com/minnowlang/minnow/vm"
)

// ErrNotFound indicates no stored program matches the requested sum.
var ErrNotFound = errors.New("store: program not found")

var log = commonlog.GetLogger("minnow.store")

// Store is a content-addressed program store backed by SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Entry describes one stored program.
type Entry struct {
	Sum       string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Open opens the store at dbPath, creating the database and schema on
// first use.
func Open(dbPath string) (*Store, error) {
	s := &Store{dbPath: dbPath}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	s.db = db

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: setting busy timeout: %w", err)
	}

	// Create table if needed
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		sum TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating table: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.dbPath
}

// Save stores prog under its image checksum and returns the hex sum.
// Saving a program that is already present replaces the existing row.
func (s *Store) Save(prog *vm.Program) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := image.Checksum(prog.Name, prog.Code)
	sum := hex.EncodeToString(h[:])

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO programs (sum, name, code, created_at) VALUES (?, ?, ?, ?)",
		sum, prog.Name, prog.Code, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("store: saving program: %w", err)
	}

	log.Debugf("saved %s (%d bytes) as %s", prog.Name, len(prog.Code), sum[:12])
	return sum, nil
}

// Load retrieves the program whose sum starts with the given prefix. A
// full 64-character sum matches exactly; shorter prefixes must name a
// single program. The row's checksum is recomputed before the program is
// returned.
func (s *Store) Load(sum string) (*vm.Program, error) {
	rows, err := s.db.Query(
		"SELECT sum, name, code FROM programs WHERE sum LIKE ? ORDER BY sum",
		sum+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("store: querying program: %w", err)
	}
	defer rows.Close()

	var (
		matches    int
		full, name string
		code       []byte
	)
	for rows.Next() {
		matches++
		if matches > 1 {
			return nil, fmt.Errorf("store: ambiguous sum prefix %q", sum)
		}
		if err := rows.Scan(&full, &name, &code); err != nil {
			return nil, fmt.Errorf("store: scanning program: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: querying program: %w", err)
	}
	if matches == 0 {
		return nil, ErrNotFound
	}

	h := image.Checksum(name, code)
	if hex.EncodeToString(h[:]) != full {
		return nil, fmt.Errorf("store: corrupt row %s: checksum mismatch", full)
	}
	return vm.NewProgram(name, code), nil
}

// List returns all stored programs, newest first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT sum, name, length(code), created_at FROM programs ORDER BY created_at DESC, sum",
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing programs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Sum, &e.Name, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("store: scanning entry: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the program with the given sum. Unlike Load it requires
// the full sum, not a prefix.
func (s *Store) Delete(sum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM programs WHERE sum = ?", sum)
	if err != nil {
		return fmt.Errorf("store: deleting program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: deleting program: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	log.Debugf("deleted %s", sum)
	return nil
}
