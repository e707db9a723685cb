// Package history keeps the most-recent-first list of analysis records.
// Writes are local-authoritative with a best-effort remote mirror; reads
// prefer the remote table and fall back to the local list on any failure.
package history

import (
	"context"
	"log"
	"sync"
	"time"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

const (
	defaultPageSize = 50
	mirrorTimeout   = 10 * time.Second
)

// Store owns the in-memory list exclusively. The remote table is a shared,
// multi-writer resource this store only appends to and reads back filtered
// by principal.
type Store struct {
	repo       domain.Repository
	principals domain.PrincipalSource
	pageSize   int

	mu      sync.Mutex
	entries []*domain.HistoryEntry

	mirrors sync.WaitGroup
}

// New builds a store. repo and principals may be nil, in which case the
// store is local-only.
func New(repo domain.Repository, principals domain.PrincipalSource) *Store {
	return &Store{repo: repo, principals: principals, pageSize: defaultPageSize}
}

// Append inserts the entry at the head of the local list, then schedules an
// independent best-effort mirror to the remote table. Mirror failure is
// logged and swallowed; it never surfaces to the caller and never removes
// the already-inserted local entry.
func (s *Store) Append(e *domain.HistoryEntry) {
	s.mu.Lock()
	s.entries = append([]*domain.HistoryEntry{e}, s.entries...)
	s.mu.Unlock()

	if s.repo == nil {
		return
	}
	s.mirrors.Add(1)
	go func() {
		defer s.mirrors.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.repo.Save(ctx, e); err != nil {
			log.Printf("history: remote mirror failed for entry %s: %v", e.ID, err)
		}
	}()
}

// Read returns the principal's entries newest first. The remote table is
// preferred; any remote failure, including a missing principal, downgrades
// silently to the local snapshot. An empty successful remote fetch returns
// the empty result — only errors trigger the fallback.
//
// When no session exists this store deliberately falls back to the local
// list rather than issuing an unfiltered cross-principal read.
func (s *Store) Read(ctx context.Context) []*domain.HistoryEntry {
	if s.repo == nil || s.principals == nil {
		return s.Local()
	}

	principal, err := s.principals.Current(ctx)
	if err != nil || principal == "" {
		log.Printf("history: no principal, serving local cache: %v", err)
		return s.Local()
	}

	rows, err := s.repo.Latest(ctx, principal, s.pageSize)
	if err != nil {
		log.Printf("history: remote read failed, serving local cache: %v", err)
		return s.Local()
	}
	if rows == nil {
		rows = []*domain.HistoryEntry{}
	}
	return rows
}

// Local returns a snapshot of the in-memory list, newest first.
func (s *Store) Local() []*domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Wait blocks until all scheduled mirrors have settled. Meant for shutdown
// paths and tests.
func (s *Store) Wait() { s.mirrors.Wait() }
