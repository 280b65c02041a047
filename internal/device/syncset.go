package device

import "sort"

// SyncSet holds the players waiting for a "synchronize" command.
type SyncSet struct {
	m *shardedMap[struct{}]
}

func NewSyncSet() *SyncSet {
	return &SyncSet{m: newShardedMap[struct{}]()}
}

func (s *SyncSet) Add(playerID int) {
	s.m.Store(playerID, struct{}{})
}

// Take consumes the mark and reports whether it was set.
func (s *SyncSet) Take(playerID int) bool {
	_, ok := s.m.LoadAndDelete(playerID)
	return ok
}

func (s *SyncSet) Remove(playerID int) {
	s.m.LoadAndDelete(playerID)
}

func (s *SyncSet) Has(playerID int) bool {
	_, ok := s.m.Load(playerID)
	return ok
}

func (s *SyncSet) Any() bool {
	return s.m.Len() > 0
}

// Members returns a sorted snapshot.
func (s *SyncSet) Members() []int {
	ids := s.m.Keys()
	sort.Ints(ids)
	return ids
}
