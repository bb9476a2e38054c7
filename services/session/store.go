// Package session holds each user's pending analysis between the cost
// estimate and the user's yes/no reply.
package session

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/stockbot/models"
	"go.uber.org/zap"
)

// pendingEntry is one user's slot
type pendingEntry struct {
	analysis models.PendingAnalysis
	element  *list.Element
}

// Store keeps at most one pending analysis per user.
// It is an LRU bounded by maxSize (0 means unbounded) with an optional TTL
// (0 means pending analyses never expire). Thread-safe.
type Store struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	expired uint64
	evicted uint64
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a pending analysis store
func NewStore(maxSize int, ttl time.Duration, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*pendingEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin stores p as the user's pending analysis, replacing any previous one
func (s *Store) Begin(p models.PendingAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	if entry, exists := s.entries[p.UserID]; exists {
		s.logger.Debug("replacing pending analysis",
			zap.String("user_id", p.UserID),
			zap.String("previous_symbol", entry.analysis.Symbol),
			zap.String("symbol", p.Symbol))
		entry.analysis = p
		s.lruList.MoveToFront(entry.element)
		return
	}

	if s.maxSize > 0 && s.lruList.Len() >= s.maxSize {
		s.evictLRU()
	}

	entry := &pendingEntry{analysis: p}
	entry.element = s.lruList.PushFront(p.UserID)
	s.entries[p.UserID] = entry
}

// Take atomically removes and returns the user's pending analysis.
// The bool is false when nothing is pending or the analysis expired.
func (s *Store) Take(userID string) (models.PendingAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[userID]
	if !exists {
		return models.PendingAnalysis{}, false
	}
	s.removeEntry(userID)

	if entry.analysis.IsExpired(s.now(), s.ttl) {
		s.expired++
		return models.PendingAnalysis{}, false
	}
	return entry.analysis, true
}

// Has reports whether the user has a live pending analysis
func (s *Store) Has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[userID]
	if !exists {
		return false
	}
	if entry.analysis.IsExpired(s.now(), s.ttl) {
		s.removeEntry(userID)
		s.expired++
		return false
	}
	return true
}

// Discard drops the user's pending analysis without returning it
func (s *Store) Discard(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeEntry(userID)
}

// Stats represents store statistics
type Stats struct {
	Size    int
	MaxSize int
	Expired uint64
	Evicted uint64
}

// Stats returns store statistics
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Size:    s.lruList.Len(),
		MaxSize: s.maxSize,
		Expired: s.expired,
		Evicted: s.evicted,
	}
}

// removeEntry must be called with the lock held
func (s *Store) removeEntry(userID string) {
	if entry, exists := s.entries[userID]; exists {
		s.lruList.Remove(entry.element)
		delete(s.entries, userID)
	}
}

// evictLRU must be called with the lock held
func (s *Store) evictLRU() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	userID := back.Value.(string)
	s.removeEntry(userID)
	s.evicted++
	s.logger.Warn("pending analysis evicted, store full", zap.String("user_id", userID))
}

// CleanupExpired removes all expired entries. It is a no-op without a TTL.
func (s *Store) CleanupExpired() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiredKeys []string
	for userID, entry := range s.entries {
		if entry.analysis.IsExpired(now, s.ttl) {
			expiredKeys = append(expiredKeys, userID)
		}
	}
	for _, userID := range expiredKeys {
		s.removeEntry(userID)
	}
	s.expired += uint64(len(expiredKeys))

	return len(expiredKeys)
}

// StartCleanupWorker periodically removes expired entries until stopCh closes
func (s *Store) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				s.logger.Debug("expired pending analyses removed", zap.Int("count", n))
			}
		case <-stopCh:
			return
		}
	}
}
