package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// @ COMMAND
func (s *pgStore) ListCommands(ctx context.Context, playerID int) ([]model.Command, error) {
	out := []model.Command{}
	const q = `
	SELECT id, player_id, command, created_at
	  FROM commands
	 WHERE player_id = $1
	 ORDER BY id;`
	if err := s.db.SelectContext(ctx, &out, q, playerID); err != nil {
		log.Error().Err(err).Int("player_id", playerID).Msg("[db] ListCommands: failed to select commands")
		return nil, err
	}
	return out, nil
}

// InsertCommand queues name for the player unless a command with that name is
// already pending. The returned bool reports whether a row was created; when
// it is false the existing command is returned.
func (s *pgStore) InsertCommand(ctx context.Context, playerID int, name string) (model.Command, bool, error) {
	var c model.Command
	const q = `
	INSERT INTO commands (player_id, command, created_at)
	VALUES ($1, $2, now())
	ON CONFLICT (player_id, command) DO NOTHING
	RETURNING id, player_id, command, created_at;`
	err := s.db.GetContext(ctx, &c, q, playerID, name)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error().Err(err).Int("player_id", playerID).Str("command", name).Msg("[db] InsertCommand: failed to insert")
		return model.Command{}, false, err
	}

	const existing = `
	SELECT id, player_id, command, created_at
	  FROM commands
	 WHERE player_id = $1 AND command = $2;`
	if err := s.db.GetContext(ctx, &c, existing, playerID, name); err != nil {
		log.Error().Err(err).Int("player_id", playerID).Str("command", name).Msg("[db] InsertCommand: failed to load existing")
		return model.Command{}, false, err
	}
	return c, false, nil
}

func (s *pgStore) DeleteCommand(ctx context.Context, playerID, commandID int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE id = $1 AND player_id = $2;`, commandID, playerID)
	if err != nil {
		log.Error().Err(err).Int("player_id", playerID).Int("command_id", commandID).Msg("[db] DeleteCommand: failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
