package db

import (
	"context"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu          sync.Mutex
	players     map[int]model.Player
	assignments map[int][]model.Assignment
	commands    map[int][]model.Command
	nextCmdID   int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:     make(map[int]model.Player),
		assignments: make(map[int][]model.Assignment),
		commands:    make(map[int][]model.Command),
	}
}

// PutPlayer inserts or replaces a player.
func (m *MemoryStore) PutPlayer(p model.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = p
}

// PutAssignment appends an assignment to its calendar, keeping insertion order.
func (m *MemoryStore) PutAssignment(a model.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.CalendarID] = append(m.assignments[a.CalendarID], a)
}

func (m *MemoryStore) GetPlayerByID(_ context.Context, id int) (model.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) GetPlayerByToken(_ context.Context, token string) (model.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.Token == token {
			return p, nil
		}
	}
	return model.Player{}, ErrNotFound
}

func (m *MemoryStore) GetPlayerByPin(_ context.Context, pin string) (model.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.Pin != nil && *p.Pin == pin {
			return p, nil
		}
	}
	return model.Player{}, ErrNotFound
}

func (m *MemoryStore) ActivatePlayer(_ context.Context, id int, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok || p.IsActivated {
		return ErrNotFound
	}
	p.Platform = &platform
	p.IsActivated = true
	p.Pin = nil
	p.UpdatedAt = time.Now().UTC()
	m.players[id] = p
	return nil
}

func (m *MemoryStore) UpdatePlayerTelemetry(_ context.Context, p model.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.players[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Version = p.Version
	cur.DeviceTime = p.DeviceTime
	cur.LastSync = p.LastSync
	cur.LastOnline = p.LastOnline
	cur.Data = p.Data
	cur.Percent = p.Percent
	cur.UpdatedAt = time.Now().UTC()
	m.players[p.ID] = cur
	return nil
}

func (m *MemoryStore) TouchPlayerLastOnline(_ context.Context, id int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	p.LastOnline = &at
	m.players[id] = p
	return nil
}

func (m *MemoryStore) SetPlayerLastScreen(_ context.Context, id int, ref model.FileRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return ErrNotFound
	}
	p.LastScreen = &ref
	m.players[id] = p
	return nil
}

func (m *MemoryStore) SetPlayerLastLog(_ context.Context, id int, ref model.FileRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return ErrNotFound
	}
	p.LastLog = &ref
	m.players[id] = p
	return nil
}

func (m *MemoryStore) ListAssignments(_ context.Context, calendarID int) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.assignments[calendarID]
	out := make([]model.Assignment, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) ListCommands(_ context.Context, playerID int) ([]model.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.commands[playerID]
	out := make([]model.Command, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) InsertCommand(_ context.Context, playerID int, name string) (model.Command, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commands[playerID] {
		if c.Command == name {
			return c, false, nil
		}
	}
	m.nextCmdID++
	c := model.Command{
		ID:        m.nextCmdID,
		PlayerID:  playerID,
		Command:   name,
		CreatedAt: time.Now().UTC(),
	}
	m.commands[playerID] = append(m.commands[playerID], c)
	return c, true, nil
}

func (m *MemoryStore) DeleteCommand(_ context.Context, playerID, commandID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.commands[playerID]
	for i, c := range list {
		if c.ID == commandID {
			m.commands[playerID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
