// Package share issues opaque tokens granting time-bounded, filter-scoped
// read access to a snapshot of the store.
package share

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
)

// Link is one issued share token.
//
// ExpiresAt nil means the link never expires; cleanup must keep such
// links (the behaviour the dashboard relies on).
type Link struct {
	ShareID          string         `json:"shareId"`
	Workspaces       []string       `json:"workspaces"`
	AbstractionLevel int            `json:"abstractionLevel"` // 0 raw .. 3 maximal redaction
	Filters          map[string]any `json:"filters,omitempty"`
	CreatedAt        int64          `json:"createdAt"`
	ExpiresAt        *int64         `json:"expiresAt,omitempty"`
	AccessCount      int            `json:"accessCount"`
	LastAccessed     int64          `json:"lastAccessed,omitempty"`
}

// CreateOptions parameterise CreateShareLink.
type CreateOptions struct {
	Workspaces       []string       `json:"workspaces"`
	AbstractionLevel int            `json:"abstractionLevel"`
	Filters          map[string]any `json:"filters,omitempty"`
	ExpirationDays   int            `json:"expirationDays"` // 0 = never expires
}

// Persistence is the durable backing for links. The in-memory map fronts
// it for hot reads; persistence failures degrade to memory-only with a
// logged warning, they never fail the operation.
type Persistence interface {
	Put(l Link) error
	Delete(id string) error
	LoadAll() ([]Link, error)
}

// Service manages share links.
type Service struct {
	logger *slog.Logger
	store  Persistence // nil for memory-only operation
	now    func() time.Time

	mu    sync.Mutex
	links map[string]*Link
}

// NewService creates the service, loading any persisted links.
func NewService(store Persistence, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger, store: store, now: time.Now, links: make(map[string]*Link)}
	if store != nil {
		persisted, err := store.LoadAll()
		if err != nil {
			logger.Warn("share: load persisted links failed", slog.String("error", err.Error()))
		}
		for _, l := range persisted {
			link := l
			s.links[l.ShareID] = &link
		}
	}
	return s
}

// SetClock overrides the time source; tests use this to advance expiry.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateShareLink issues a new link. Token collisions are rejected and
// retried rather than overwritten.
func (s *Service) CreateShareLink(opts CreateOptions) (*Link, error) {
	if opts.AbstractionLevel < 0 || opts.AbstractionLevel > 3 {
		return nil, fmt.Errorf("abstraction level %d out of range: %w", opts.AbstractionLevel, apperr.ErrValidation)
	}
	if opts.ExpirationDays < 0 {
		return nil, fmt.Errorf("negative expiration: %w", apperr.ErrValidation)
	}

	now := s.now()
	link := &Link{
		Workspaces:       append([]string{}, opts.Workspaces...),
		AbstractionLevel: opts.AbstractionLevel,
		Filters:          opts.Filters,
		CreatedAt:        now.UnixMilli(),
	}
	if opts.ExpirationDays > 0 {
		exp := now.UnixMilli() + int64(opts.ExpirationDays)*86_400_000
		link.ExpiresAt = &exp
	}

	s.mu.Lock()
	for {
		id, err := newShareID()
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("share: generate id: %w", err)
		}
		if _, clash := s.links[id]; !clash {
			link.ShareID = id
			break
		}
	}
	s.links[link.ShareID] = link
	out := *link
	s.mu.Unlock()

	s.persist(out)
	return &out, nil
}

// GetShareLink returns the link, counting the access. Expired links are
// removed and reported as absent.
func (s *Service) GetShareLink(id string) *Link {
	now := s.now().UnixMilli()

	s.mu.Lock()
	link, ok := s.links[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if link.ExpiresAt != nil && now >= *link.ExpiresAt {
		delete(s.links, id)
		s.mu.Unlock()
		s.remove(id)
		return nil
	}
	link.AccessCount++
	link.LastAccessed = now
	out := *link
	s.mu.Unlock()

	s.persist(out)
	return &out
}

// DeleteShareLink removes a link.
func (s *Service) DeleteShareLink(id string) error {
	s.mu.Lock()
	_, ok := s.links[id]
	delete(s.links, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("share link %s: %w", id, apperr.ErrNotFound)
	}
	s.remove(id)
	return nil
}

// ListShareLinks returns all unexpired links, without counting accesses.
func (s *Service) ListShareLinks() []Link {
	now := s.now().UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Link{}
	for _, l := range s.links {
		if l.ExpiresAt != nil && now >= *l.ExpiresAt {
			continue
		}
		out = append(out, *l)
	}
	return out
}

// CleanupExpiredLinks removes expired links and reports how many were
// dropped. Idempotent; links without an expiry are always kept.
func (s *Service) CleanupExpiredLinks() int {
	now := s.now().UnixMilli()

	s.mu.Lock()
	var expired []string
	for id, l := range s.links {
		if l.ExpiresAt != nil && now >= *l.ExpiresAt {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.links, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.remove(id)
	}
	if len(expired) > 0 {
		s.logger.Info("share: cleaned up expired links", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// RunCleanup invokes CleanupExpiredLinks on the given interval until the
// channel closes. Callers pass ctx.Done().
func (s *Service) RunCleanup(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.CleanupExpiredLinks()
		}
	}
}

// Count returns the number of stored links, expired or not.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *Service) persist(l Link) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(l); err != nil {
		s.logger.Warn("share: persist failed, continuing in memory",
			slog.String("id", l.ShareID), slog.String("error", err.Error()))
	}
}

func (s *Service) remove(id string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.logger.Warn("share: delete from store failed",
			slog.String("id", id), slog.String("error", err.Error()))
	}
}

// newShareID returns 16 random bytes as 32 hex chars.
func newShareID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
