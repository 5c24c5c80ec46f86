// Package cache defines the page-store collaborator the formatter borrows
// from. The cache itself (storage, VBI decode, eviction) is out of scope —
// this package only names the seam: a Store the formatter reads through,
// plus a minimal in-memory implementation for tests and the demo CLI.
package cache

import (
	"sync"

	"github.com/bdwalton/ttxfmt/raw"
)

// Store is the read/coerce interface the formatter needs from a page cache.
// Implementations must keep a fetched *raw.Page alive and immutable for the
// duration of one format call, and must serialise Coerce against concurrent
// Get/Coerce calls on the same page (spec: "UNKNOWN -> concrete" is the only
// permitted mutation, and it must be compare-and-set).
type Store interface {
	Get(pgno, subno int) (*raw.Page, bool)
	Magazine(index int) (*raw.Magazine, bool)
	Coerce(pgno, subno int, want raw.Function) (*raw.Page, bool)
}

// MemStore is a minimal in-memory Store: a map guarded by one RWMutex. It is
// not a production cache — just enough of one to exercise every formatter
// path in tests and the demo CLI.
type MemStore struct {
	mu    sync.RWMutex
	pages map[key]*raw.Page
	mags  map[int]*raw.Magazine
}

type key struct{ pgno, subno int }

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		pages: make(map[key]*raw.Page),
		mags:  make(map[int]*raw.Magazine),
	}
}

// Put installs or replaces a page. Intended for test fixtures and the demo
// CLI, not a concurrent-safe production write path.
func (s *MemStore) Put(p *raw.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key{p.Pgno, p.Subno}] = p
}

// PutMagazine installs a magazine table (index 0..7).
func (s *MemStore) PutMagazine(index int, m *raw.Magazine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mags[index] = m
}

func (s *MemStore) Get(pgno, subno int) (*raw.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[key{pgno, subno}]
	return p, ok
}

func (s *MemStore) Magazine(index int) (*raw.Magazine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mags[index]
	return m, ok
}

func (s *MemStore) Coerce(pgno, subno int, want raw.Function) (*raw.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[key{pgno, subno}]
	if !ok {
		return nil, false
	}
	if err := p.Coerce(want); err != nil {
		return nil, false
	}
	return p, true
}
