// Package store holds the canonical match record. All mutation funnels
// through the authority router; the store itself only knows how to read,
// merge, persist and broadcast. Broadcast is fire-and-forget: a participant
// that misses one self-heals on its next Get.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/match"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

const matchKey = "match"

// Broadcast is the outbound side of the shared channel.
type Broadcast interface {
	Emit(env wire.Envelope)
}

// Snapshot is what goes out on every state change.
type Snapshot struct {
	Version int         `json:"version"`
	Match   match.Match `json:"match"`
}

// Store reads and writes the match record. The contest scope takes
// precedence over the scene scope when both hold a record.
type Store struct {
	persistence  Persistence
	sceneScope   string
	contestScope string
	bus          Broadcast
	log          *zap.Logger

	mu      sync.Mutex
	version int
}

func New(p Persistence, sceneScope, contestScope string, bus Broadcast, log *zap.Logger) *Store {
	return &Store{
		persistence:  p,
		sceneScope:   sceneScope,
		contestScope: contestScope,
		bus:          bus,
		log:          log,
	}
}

// Get returns the current record, falling back to defaults when neither
// scope holds one.
func (s *Store) Get(ctx context.Context) (match.Match, error) {
	for _, scope := range []string{s.contestScope, s.sceneScope} {
		if scope == "" {
			continue
		}
		raw, ok, err := s.persistence.Get(ctx, scope, matchKey)
		if err != nil {
			return match.Match{}, fmt.Errorf("read match from %s: %w", scope, err)
		}
		if !ok {
			continue
		}
		var m match.Match
		if err := json.Unmarshal(raw, &m); err != nil {
			return match.Match{}, fmt.Errorf("decode match from %s: %w", scope, err)
		}
		return m, nil
	}
	return match.New(), nil
}

// Update applies mutate to the current record, persists the result to the
// contest scope and broadcasts the full new record. Only the authoritative
// participant may call this; the game node guards that.
func (s *Store) Update(ctx context.Context, mutate func(*match.Match)) (match.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Get(ctx)
	if err != nil {
		return match.Match{}, err
	}
	mutate(&m)
	if err := s.persist(ctx, m); err != nil {
		return match.Match{}, err
	}
	s.version++
	s.broadcast(m)
	return m, nil
}

// Reset restores defaults and broadcasts them.
func (s *Store) Reset(ctx context.Context) (match.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := match.New()
	if err := s.persist(ctx, m); err != nil {
		return match.Match{}, err
	}
	if s.sceneScope != "" {
		if err := s.persistence.Delete(ctx, s.sceneScope, matchKey); err != nil {
			s.log.Warn("clear scene record", zap.Error(err))
		}
	}
	s.version++
	s.broadcast(m)
	return m, nil
}

func (s *Store) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) persist(ctx context.Context, m match.Match) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	scope := s.contestScope
	if scope == "" {
		scope = s.sceneScope
	}
	if err := s.persistence.Set(ctx, scope, matchKey, raw); err != nil {
		return fmt.Errorf("persist match: %w", err)
	}
	return nil
}

func (s *Store) broadcast(m match.Match) {
	s.bus.Emit(wire.Envelope{
		Type:    wire.TypeStateChanged,
		Payload: wire.MustMarshal(Snapshot{Version: s.version, Match: m}),
	})
}
