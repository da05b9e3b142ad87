package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
)

// Memory is an in-process Store used by tests and the simulate command.
// Values are copied on the way in and out so callers never share state with
// the store.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*User
	byUsername map[string]string
	parties    map[string]*party.Party
	byInvite   map[string]string
	seats      map[string][]*party.Seat // partyID -> seats ordered by index
	rounds     map[string][]*game.Round // partyID -> rounds in creation order
	states     map[string][]byte        // partyID -> serialized game state
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
		parties:    make(map[string]*party.Party),
		byInvite:   make(map[string]string),
		seats:      make(map[string][]*party.Seat),
		rounds:     make(map[string][]*game.Round),
		states:     make(map[string][]byte),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrExists)
	}
	if _, ok := m.byUsername[u.Username]; ok {
		return fmt.Errorf("username %s: %w", u.Username, ErrExists)
	}
	cp := *u
	m.users[u.ID] = &cp
	m.byUsername[u.Username] = u.ID
	return nil
}

func (m *Memory) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("username %s: %w", username, ErrNotFound)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) UserExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[id]
	return ok, nil
}

func (m *Memory) ListUsers(_ context.Context, offset, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*User, 0, limit)
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		cp := *m.users[ids[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) CountUsers(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *Memory) CreateParty(_ context.Context, p *party.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.parties[p.ID]; ok {
		return fmt.Errorf("party %s: %w", p.ID, ErrExists)
	}
	cp := *p
	m.parties[p.ID] = &cp
	m.byInvite[p.InviteCode] = p.ID
	return nil
}

func (m *Memory) UpdateParty(_ context.Context, p *party.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.parties[p.ID]
	if !ok {
		return fmt.Errorf("party %s: %w", p.ID, ErrNotFound)
	}
	if old.InviteCode != p.InviteCode {
		delete(m.byInvite, old.InviteCode)
		m.byInvite[p.InviteCode] = p.ID
	}
	cp := *p
	m.parties[p.ID] = &cp
	return nil
}

func (m *Memory) DeleteParty(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok {
		return fmt.Errorf("party %s: %w", id, ErrNotFound)
	}
	delete(m.byInvite, p.InviteCode)
	delete(m.parties, id)
	delete(m.seats, id)
	delete(m.rounds, id)
	delete(m.states, id)
	return nil
}

func (m *Memory) PartyByID(_ context.Context, id string) (*party.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parties[id]
	if !ok {
		return nil, fmt.Errorf("party %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) PartyByInviteCode(_ context.Context, code string) (*party.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byInvite[code]
	if !ok {
		return nil, fmt.Errorf("invite %s: %w", code, ErrNotFound)
	}
	cp := *m.parties[id]
	return &cp, nil
}

func (m *Memory) ListPublic(_ context.Context, status party.Status, offset, limit int) ([]*party.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*party.Party, 0)
	for _, p := range m.parties {
		if p.Visibility == party.Public && p.Status == status {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	out := make([]*party.Party, 0, limit)
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		cp := *matched[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) ListByStatus(_ context.Context, status party.Status) ([]*party.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*party.Party
	for _, p := range m.parties {
		if p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CountPublic(_ context.Context, status party.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.parties {
		if p.Visibility == party.Public && p.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *Memory) AddPlayer(_ context.Context, seat *party.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.seats[seat.PartyID] {
		if s.UserID == seat.UserID {
			return fmt.Errorf("seat %s/%s: %w", seat.PartyID, seat.UserID, ErrExists)
		}
	}
	cp := *seat
	m.seats[seat.PartyID] = append(m.seats[seat.PartyID], &cp)
	m.sortSeats(seat.PartyID)
	return nil
}

func (m *Memory) RemovePlayer(_ context.Context, partyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seats := m.seats[partyID]
	for i, s := range seats {
		if s.UserID == userID {
			m.seats[partyID] = append(seats[:i], seats[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("seat %s/%s: %w", partyID, userID, ErrNotFound)
}

func (m *Memory) Players(_ context.Context, partyID string) ([]*party.Seat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seats := m.seats[partyID]
	out := make([]*party.Seat, len(seats))
	for i, s := range seats {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) PlayerCount(_ context.Context, partyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seats[partyID]), nil
}

func (m *Memory) IsUserInParty(_ context.Context, partyID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.seats[partyID] {
		if s.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) UserPlayerIndex(_ context.Context, partyID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.seats[partyID] {
		if s.UserID == userID {
			return s.PlayerIndex, nil
		}
	}
	return 0, fmt.Errorf("seat %s/%s: %w", partyID, userID, ErrNotFound)
}

func (m *Memory) UpdateSeats(_ context.Context, partyID string, seats []*party.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	replaced := make([]*party.Seat, len(seats))
	for i, s := range seats {
		cp := *s
		replaced[i] = &cp
	}
	m.seats[partyID] = replaced
	m.sortSeats(partyID)
	return nil
}

func (m *Memory) PartyForUser(_ context.Context, userID string) (*party.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for partyID, seats := range m.seats {
		for _, s := range seats {
			if s.UserID == userID {
				cp := *m.parties[partyID]
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("user %s party: %w", userID, ErrNotFound)
}

// sortSeats keeps seats ordered by player index. Callers hold m.mu.
func (m *Memory) sortSeats(partyID string) {
	sort.Slice(m.seats[partyID], func(i, j int) bool {
		return m.seats[partyID][i].PlayerIndex < m.seats[partyID][j].PlayerIndex
	})
}

func (m *Memory) SaveRound(_ context.Context, r *game.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	rounds := m.rounds[r.PartyID]
	for i, existing := range rounds {
		if existing.ID == r.ID {
			rounds[i] = &cp
			return nil
		}
	}
	m.rounds[r.PartyID] = append(rounds, &cp)
	return nil
}

func (m *Memory) DeleteRound(_ context.Context, partyID, roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rounds := m.rounds[partyID]
	for i, r := range rounds {
		if r.ID == roundID {
			m.rounds[partyID] = append(rounds[:i], rounds[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("round %s/%s: %w", partyID, roundID, ErrNotFound)
}

func (m *Memory) ActiveRound(_ context.Context, partyID string) (*game.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rounds := m.rounds[partyID]
	for i := len(rounds) - 1; i >= 0; i-- {
		if rounds[i].Status == game.RoundActive {
			cp := *rounds[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("active round for %s: %w", partyID, ErrNotFound)
}

func (m *Memory) Rounds(_ context.Context, partyID string) ([]*game.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rounds := m.rounds[partyID]
	out := make([]*game.Round, len(rounds))
	for i, r := range rounds {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// SaveGameState serializes through JSON, matching what the sqlite store
// persists so both survive the same round trip.
func (m *Memory) SaveGameState(_ context.Context, partyID string, s *game.State) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[partyID] = blob
	return nil
}

func (m *Memory) GameState(_ context.Context, partyID string) (*game.State, error) {
	m.mu.RLock()
	blob, ok := m.states[partyID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("game state for %s: %w", partyID, ErrNotFound)
	}
	var s game.State
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("unmarshal game state: %w", err)
	}
	return &s, nil
}
