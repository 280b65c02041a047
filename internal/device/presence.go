package device

import "sort"

// Presence maps player ids to their live connection. A player is online iff
// it has an entry here.
type Presence struct {
	conns *shardedMap[*Conn]
}

func NewPresence() *Presence {
	return &Presence{conns: newShardedMap[*Conn]()}
}

// Register makes c the player's connection and returns the handle it
// replaced, if any.
func (p *Presence) Register(c *Conn) *Conn {
	var prev *Conn
	p.conns.Compute(c.PlayerID, func(old *Conn, loaded bool) (*Conn, bool) {
		if loaded && old != c {
			prev = old
		}
		return c, true
	})
	return prev
}

// Unregister removes c only while it is still the player's current handle.
func (p *Presence) Unregister(c *Conn) bool {
	removed := false
	p.conns.Compute(c.PlayerID, func(old *Conn, loaded bool) (*Conn, bool) {
		if !loaded {
			return nil, false
		}
		if old != c {
			return old, true
		}
		removed = true
		return nil, false
	})
	return removed
}

func (p *Presence) Get(playerID int) (*Conn, bool) {
	return p.conns.Load(playerID)
}

// Remove drops whatever connection the player has.
func (p *Presence) Remove(playerID int) (*Conn, bool) {
	return p.conns.LoadAndDelete(playerID)
}

func (p *Presence) Online(playerID int) bool {
	_, ok := p.conns.Load(playerID)
	return ok
}

// Players lists connected player ids in ascending order.
func (p *Presence) Players() []int {
	ids := p.conns.Keys()
	sort.Ints(ids)
	if ids == nil {
		ids = []int{}
	}
	return ids
}

func (p *Presence) Len() int {
	return p.conns.Len()
}
