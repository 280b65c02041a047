// Package device runs player sessions and delivers commands to players.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

var (
	// ErrUnauthorized rejects a missing or unresolvable credential.
	ErrUnauthorized = errors.New("device: unauthorized")
	// ErrBadScheme rejects a credential whose scheme is not OAuth.
	ErrBadScheme = errors.New("device: unsupported authorization scheme")
	// ErrOffline is returned when the player has no connection on this instance.
	ErrOffline = errors.New("device: player offline")
)

const (
	authScheme     = "oauth"
	defaultDelay   = 7 * time.Second
	deliverTimeout = 10 * time.Second
)

// Store is what the service needs from persistence.
type Store interface {
	CommandStore
	GetPlayerByID(ctx context.Context, id int) (model.Player, error)
	GetPlayerByToken(ctx context.Context, token string) (model.Player, error)
	UpdatePlayerTelemetry(ctx context.Context, p model.Player) error
	TouchPlayerLastOnline(ctx context.Context, id int, at time.Time) error
}

// Relay forwards a flush to whichever instance holds the player's connection.
type Relay interface {
	PublishFlush(ctx context.Context, playerID int) error
}

type Option func(*Service)

// WithDebounce sets how long a telemetry round trip waits before answering.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) { s.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRelay(r Relay) Option {
	return func(s *Service) { s.relay = r }
}

// Service owns the presence registry, the pending-sync set and the command
// queue shared by every session.
type Service struct {
	store    Store
	queue    *CommandQueue
	presence *Presence
	pending  *SyncSet
	debounce *Debouncer

	delay time.Duration
	now   func() time.Time
	relay Relay

	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(store Store, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:    store,
		queue:    NewCommandQueue(store),
		presence: NewPresence(),
		pending:  NewSyncSet(),
		debounce: NewDebouncer(),
		delay:    defaultDelay,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRelay attaches a relay after construction, for relays that need the
// service themselves.
func (s *Service) SetRelay(r Relay) {
	s.relay = r
}

// ParseAuthorization extracts the token from an "OAuth <token>" credential.
func ParseAuthorization(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrUnauthorized
	}
	scheme, token, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, authScheme) {
		return "", ErrBadScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

// Authenticate resolves an "OAuth <token>" credential to its player.
func (s *Service) Authenticate(ctx context.Context, authorization string) (model.Player, error) {
	token, err := ParseAuthorization(authorization)
	if err != nil {
		return model.Player{}, err
	}
	p, err := s.store.GetPlayerByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return model.Player{}, ErrUnauthorized
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("resolve player token: %w", err)
	}
	return p, nil
}

// Serve runs one player's session until the channel closes, ctx is done or
// the player sends a frame that cannot be parsed. A closed channel is a
// normal end and returns nil.
func (s *Service) Serve(ctx context.Context, p model.Player, ch Channel) error {
	c := newConn(p.ID, ch)
	if prev := s.presence.Register(c); prev != nil {
		log.Info().Int("player_id", p.ID).Msg("player reconnected, closing stale connection")
		prev.Close()
	}
	log.Info().Int("player_id", p.ID).Msg("player connected")
	defer s.disconnect(c)

	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) || ctx.Err() != nil {
				return nil
			}
			select {
			case <-c.Done():
				return nil
			default:
			}
			return fmt.Errorf("receive from player %d: %w", p.ID, err)
		}
		if err := s.handleFrame(ctx, c, msg); err != nil {
			log.Warn().Err(err).Int("player_id", p.ID).Msg("closing session on protocol error")
			return err
		}
	}
}

func (s *Service) handleFrame(ctx context.Context, c *Conn, msg []byte) error {
	f, err := parseFrame(msg)
	if err != nil {
		return err
	}

	if len(f.CommandsAcknowledge) > 0 {
		n, err := s.queue.Ack(ctx, c.PlayerID, f.CommandsAcknowledge)
		if err != nil {
			log.Error().Err(err).Int("player_id", c.PlayerID).Msg("failed to retire acknowledged commands")
		} else if n > 0 {
			log.Debug().Int("player_id", c.PlayerID).Int("removed", n).Msg("commands acknowledged")
		}
	}

	p, err := s.store.GetPlayerByID(ctx, c.PlayerID)
	if err != nil {
		log.Error().Err(err).Int("player_id", c.PlayerID).Msg("failed to load player for telemetry")
	} else {
		f.apply(&p, s.now())
		if err := s.store.UpdatePlayerTelemetry(ctx, p); err != nil {
			log.Error().Err(err).Int("player_id", c.PlayerID).Msg("failed to persist telemetry")
		}
	}

	s.debounce.Open(c.PlayerID, s.delay, func() { s.decide(c) })
	return nil
}

// decide answers a telemetry round trip once its window expired uncancelled.
func (s *Service) decide(c *Conn) {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, deliverTimeout)
	defer cancel()

	if s.pending.Take(c.PlayerID) {
		if err := s.RequestSync(ctx, c.PlayerID); err != nil {
			log.Error().Err(err).Int("player_id", c.PlayerID).Msg("failed to sync player")
		}
		return
	}
	if err := s.flushTo(ctx, c); err != nil && !errors.Is(err, ErrChannelClosed) {
		log.Error().Err(err).Int("player_id", c.PlayerID).Msg("failed to send commands")
	}
}

func (s *Service) disconnect(c *Conn) {
	s.presence.Unregister(c)
	c.Close()

	if cur, ok := s.presence.Get(c.PlayerID); ok && cur != c {
		log.Debug().Int("player_id", c.PlayerID).Msg("stale session ended")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := s.store.TouchPlayerLastOnline(ctx, c.PlayerID, s.now()); err != nil {
		log.Error().Err(err).Int("player_id", c.PlayerID).Msg("failed to record last online")
	}
	log.Info().Int("player_id", c.PlayerID).Msg("player disconnected")
}

// flushTo sends the player's full pending list over c.
func (s *Service) flushTo(ctx context.Context, c *Conn) error {
	cmds, err := s.queue.Pending(ctx, c.PlayerID)
	if err != nil {
		return err
	}
	return c.Send(ctx, CommandsFrame{Commands: cmds})
}

// Flush pushes the pending list to the player if it is connected here,
// pre-empting any open debounce window.
func (s *Service) Flush(ctx context.Context, playerID int) error {
	c, ok := s.presence.Get(playerID)
	if !ok {
		return ErrOffline
	}
	s.debounce.Cancel(playerID)
	return s.flushTo(ctx, c)
}

// SendCommand queues name for the player unless it is already pending and
// pushes the pending list when the player is connected. It reports whether
// the list was delivered by this instance; otherwise the command waits for
// the next round trip.
func (s *Service) SendCommand(ctx context.Context, playerID int, name string) (bool, error) {
	if _, _, err := s.queue.Enqueue(ctx, playerID, name); err != nil {
		return false, err
	}

	err := s.Flush(ctx, playerID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrOffline):
		if s.relay != nil {
			if err := s.relay.PublishFlush(ctx, playerID); err != nil {
				log.Error().Err(err).Int("player_id", playerID).Msg("failed to relay flush")
			}
		}
		return false, nil
	case errors.Is(err, ErrChannelClosed):
		return false, nil
	default:
		return false, err
	}
}

// RequestSync clears the player's pending-sync mark and sends "synchronize".
func (s *Service) RequestSync(ctx context.Context, playerID int) error {
	s.pending.Remove(playerID)
	_, err := s.SendCommand(ctx, playerID, model.CommandSynchronize)
	return err
}

// MarkSyncPending flags the player for a sync on its next round trip or the
// next SyncAll.
func (s *Service) MarkSyncPending(playerID int) {
	s.pending.Add(playerID)
}

func (s *Service) AnySyncPending() bool {
	return s.pending.Any()
}

// SyncAll drains the pending-sync set one player at a time and returns how
// many players were synced.
func (s *Service) SyncAll(ctx context.Context) (int, error) {
	var errs []error
	n := 0
	for _, id := range s.pending.Members() {
		if !s.pending.Take(id) {
			continue
		}
		if err := s.RequestSync(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Deactivate drops the player's connection and closes it.
func (s *Service) Deactivate(playerID int) bool {
	c, ok := s.presence.Remove(playerID)
	if !ok {
		return false
	}
	s.debounce.Cancel(playerID)
	c.Close()
	log.Info().Int("player_id", playerID).Msg("player deactivated")
	return true
}

func (s *Service) Online(playerID int) bool {
	return s.presence.Online(playerID)
}

func (s *Service) OnlinePlayers() []int {
	return s.presence.Players()
}

// PendingCommands returns the player's queued commands.
func (s *Service) PendingCommands(ctx context.Context, playerID int) ([]model.Command, error) {
	return s.queue.Pending(ctx, playerID)
}

// Close stops delayed work and closes every connection.
func (s *Service) Close() {
	s.cancel()
	s.debounce.Stop()
	for _, id := range s.presence.Players() {
		s.Deactivate(id)
	}
}
