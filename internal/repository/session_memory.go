package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
)

// memorySession keeps JSON blobs in a map, so callers never share pointers
// with the stored record, same as the networked adapters.
type memorySession struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySession{
		sessions: make(map[string][]byte),
	}
}

func (that *memorySession) Create(_ context.Context, session *entity.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.sessions[session.ID]; ok {
		return apperror.ErrSessionExists
	}

	that.sessions[session.ID] = data

	return nil
}

func (that *memorySession) GetByID(_ context.Context, id string) (*entity.Session, error) {
	that.mu.RLock()
	data, ok := that.sessions[id]
	that.mu.RUnlock()

	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	var session entity.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (that *memorySession) Save(_ context.Context, session *entity.Session, expectedRevision int64) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	current, ok := that.sessions[session.ID]
	if !ok {
		return apperror.ErrSessionNotFound
	}

	var stored struct {
		Revision int64 `json:"revision"`
	}
	if err = json.Unmarshal(current, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if stored.Revision != expectedRevision {
		return apperror.ErrConflict
	}

	that.sessions[session.ID] = data

	return nil
}

func (that *memorySession) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.sessions[id]; !ok {
		return apperror.ErrSessionNotFound
	}

	delete(that.sessions, id)

	return nil
}

func (that *memorySession) ListIDs(_ context.Context) ([]string, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	ids := make([]string, 0, len(that.sessions))
	for id := range that.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}
