package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is the in-memory fallback used when no DATABASE_URL is configured.
// It keeps the same observable behavior as the Postgres repository.
type memRepo struct {
	mu sync.RWMutex

	usersByID    map[string]*User
	usersByEmail map[string]*User
	matches      map[string]*MatchRecord // keyed by route
}

func NewMemoryRepository() Repository {
	return &memRepo{
		usersByID:    make(map[string]*User),
		usersByEmail: make(map[string]*User),
		matches:      make(map[string]*MatchRecord),
	}
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) FindOrCreateUser(ctx context.Context, email, name string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usersByEmail[email]; ok {
		if n := strings.TrimSpace(name); n != "" {
			u.Name = n
		}
		cp := *u
		return &cp, nil
	}
	u := &User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Rating:    1200,
		CreatedAt: time.Now(),
	}
	m.usersByEmail[email] = u
	m.usersByID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.usersByEmail[strings.ToLower(strings.TrimSpace(email))]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memRepo) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.usersByID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memRepo) CreateMatch(ctx context.Context, rec *MatchRecord) error {
	if rec == nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matches[rec.Route]; exists {
		return ErrDuplicateMatch
	}
	cp := *rec
	cp.MovesUCI = append([]string(nil), rec.MovesUCI...)
	cp.MovesSAN = append([]string(nil), rec.MovesSAN...)
	m.matches[rec.Route] = &cp
	return nil
}

func (m *memRepo) AppendMove(ctx context.Context, route string, mv MoveEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.matches[route]
	if !ok {
		return ErrNotFound
	}
	rec.MovesUCI = append(rec.MovesUCI, mv.UCI)
	rec.MovesSAN = append(rec.MovesSAN, mv.SAN)
	rec.FEN = mv.FEN
	return nil
}

func (m *memRepo) EndMatch(ctx context.Context, route string, end MatchEnd) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.matches[route]
	if !ok {
		return ErrNotFound
	}
	rec.Status = end.Status
	rec.Result = end.Result
	rec.EndReason = end.Reason
	rec.WinnerID = end.WinnerID
	rec.PGN = end.PGN
	if end.FEN != "" {
		rec.FEN = end.FEN
	}
	rec.EndedAt = end.EndedAt

	if end.WinnerID != "" {
		loserID := rec.WhiteID
		if end.WinnerID == rec.WhiteID {
			loserID = rec.BlackID
		}
		if u, ok := m.usersByID[end.WinnerID]; ok {
			u.GamesWon++
		}
		if u, ok := m.usersByID[loserID]; ok {
			u.GamesLost++
		}
	} else {
		for _, id := range []string{rec.WhiteID, rec.BlackID} {
			if u, ok := m.usersByID[id]; ok {
				u.GamesDrawn++
			}
		}
	}
	return nil
}

func (m *memRepo) GetMatchByRoute(ctx context.Context, route string) (*MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.matches[route]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.MovesUCI = append([]string(nil), rec.MovesUCI...)
	cp.MovesSAN = append([]string(nil), rec.MovesSAN...)
	return &cp, nil
}

func (m *memRepo) ListMatchesForUser(ctx context.Context, userID string, activeOnly bool, limit int) ([]*MatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*MatchRecord
	for _, rec := range m.matches {
		if rec.WhiteID != userID && rec.BlackID != userID {
			continue
		}
		if activeOnly && rec.Status != "ACTIVE" {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) DeleteMatch(ctx context.Context, route string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, route)
	return nil
}
