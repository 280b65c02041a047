package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

const playerColumns = `
	id, name, calendar_id, token, pin, platform, timezone, is_activated,
	version, device_time, last_sync, last_online, data, percent,
	last_screen, last_log, created_at, updated_at`

func (s *pgStore) getPlayer(ctx context.Context, where string, arg any) (model.Player, error) {
	var p model.Player
	q := `SELECT ` + playerColumns + ` FROM players WHERE ` + where + `;`
	err := s.db.GetContext(ctx, &p, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("where", where).Msg("failed to get player")
		return model.Player{}, err
	}
	return p, nil
}

func (s *pgStore) GetPlayerByID(ctx context.Context, id int) (model.Player, error) {
	return s.getPlayer(ctx, "id = $1", id)
}

func (s *pgStore) GetPlayerByToken(ctx context.Context, token string) (model.Player, error) {
	return s.getPlayer(ctx, "token = $1", token)
}

func (s *pgStore) GetPlayerByPin(ctx context.Context, pin string) (model.Player, error) {
	return s.getPlayer(ctx, "pin = $1", pin)
}

// marks the player activated on the given platform and burns its PIN.
func (s *pgStore) ActivatePlayer(ctx context.Context, id int, platform string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE players
		   SET platform = $2,
		       is_activated = true,
		       pin = NULL,
		       updated_at = now()
		 WHERE id = $1 AND is_activated = false;`,
		id, platform,
	)
	if err != nil {
		log.Error().Err(err).Int("player_id", id).Msg("failed to activate player")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// persists everything the device reports about itself.
func (s *pgStore) UpdatePlayerTelemetry(ctx context.Context, p model.Player) error {
	_, err := s.db.NamedExecContext(ctx, `
		UPDATE players
		   SET version     = :version,
		       device_time = :device_time,
		       last_sync   = :last_sync,
		       last_online = :last_online,
		       data        = :data,
		       percent     = :percent,
		       updated_at  = now()
		 WHERE id = :id;`, p)
	if err != nil {
		log.Error().Err(err).Int("player_id", p.ID).Msg("failed to update player telemetry")
	}
	return err
}

func (s *pgStore) TouchPlayerLastOnline(ctx context.Context, id int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE players SET last_online = $2 WHERE id = $1;`, id, at.UTC())
	if err != nil {
		log.Error().Err(err).Int("player_id", id).Msg("failed to update last online")
	}
	return err
}

func (s *pgStore) SetPlayerLastScreen(ctx context.Context, id int, ref model.FileRef) error {
	_, err := s.db.ExecContext(ctx, `UPDATE players SET last_screen = $2, updated_at = now() WHERE id = $1;`, id, ref)
	if err != nil {
		log.Error().Err(err).Int("player_id", id).Msg("failed to store last screenshot")
	}
	return err
}

func (s *pgStore) SetPlayerLastLog(ctx context.Context, id int, ref model.FileRef) error {
	_, err := s.db.ExecContext(ctx, `UPDATE players SET last_log = $2, updated_at = now() WHERE id = $1;`, id, ref)
	if err != nil {
		log.Error().Err(err).Int("player_id", id).Msg("failed to store last log")
	}
	return err
}
