// Package session manages worker-side board checkouts. A checkout pins a
// board file for exclusive editing: the committed snapshot stays immutable
// while tools mutate a working copy, and a commit atomically rewrites the
// file from the working copy.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fleaxiao/PCB-MCP/internal/board"
	"github.com/fleaxiao/PCB-MCP/internal/rules"
)

// Checkout is one session's view of a board. Committed is the last
// durable state; Working is the copy tools mutate.
type Checkout struct {
	ID          string
	BoardPath   string
	Committed   *board.Board
	Working     *board.Board
	Constraints []rules.Constraint

	mu sync.Mutex
}

// Lock serializes tool access to the working copy within a session.
func (c *Checkout) Lock()   { c.mu.Lock() }
func (c *Checkout) Unlock() { c.mu.Unlock() }

// Store holds active checkouts keyed by session id and enforces one
// checkout per board path.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*Checkout
	byPath map[string]string // abs path -> session id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[string]*Checkout),
		byPath: make(map[string]string),
	}
}

// Checkout loads the board at path and pins it for the session. It fails
// if the path is already checked out by another session or the session
// already holds a checkout.
func (s *Store) Checkout(sessionID, path string) (*Checkout, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve board path: %w", err)
	}

	// Reserve the session and path first so the parse happens outside the
	// store lock; a slow board must not block unrelated checkouts.
	s.mu.Lock()
	if _, dup := s.byID[sessionID]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s already holds a checkout", sessionID)
	}
	if holder, busy := s.byPath[abs]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("board %s is checked out by session %s", abs, holder)
	}
	co := &Checkout{ID: sessionID, BoardPath: abs}
	s.byID[sessionID] = co
	s.byPath[abs] = sessionID
	s.mu.Unlock()

	b, err := board.Load(abs)
	if err != nil {
		s.Release(sessionID)
		return nil, err
	}

	co.Lock()
	co.Committed = b
	co.Working = b.Clone()
	co.Unlock()
	return co, nil
}

// Get returns the checkout for a session.
func (s *Store) Get(sessionID string) (*Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	co, ok := s.byID[sessionID]
	if !ok {
		return nil, fmt.Errorf("no checkout for session %s", sessionID)
	}
	return co, nil
}

// SetConstraints records the active constraint set for the session.
func (s *Store) SetConstraints(sessionID string, cs []rules.Constraint) error {
	co, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	co.Lock()
	co.Constraints = cs
	co.Unlock()
	return nil
}

// DiscardWorking resets the working copy back to the committed snapshot.
func (s *Store) DiscardWorking(sessionID string) error {
	co, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	co.Lock()
	co.Working = co.Committed.Clone()
	co.Unlock()
	return nil
}

// Commit serializes the working copy over the board file with an atomic
// rename, then promotes it to the committed snapshot.
func (s *Store) Commit(sessionID string) error {
	co, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	co.Lock()
	defer co.Unlock()

	data := board.Serialize(co.Working)
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(co.BoardPath); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(co.BoardPath), ".pcb-commit-*")
	if err != nil {
		return fmt.Errorf("commit board: %w", err)
	}
	tmpName := tmp.Name()
	// CreateTemp files are 0600; the rename must not change the board
	// file's permissions.
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("commit board: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("commit board: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit board: %w", err)
	}
	if err := os.Rename(tmpName, co.BoardPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit board: %w", err)
	}

	co.Committed = co.Working.Clone()
	return nil
}

// Release drops the session's checkout and frees the board path. Releasing
// an unknown session is a no-op.
func (s *Store) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	co, ok := s.byID[sessionID]
	if !ok {
		return
	}
	delete(s.byID, sessionID)
	delete(s.byPath, co.BoardPath)
}
