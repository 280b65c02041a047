package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

type assignmentRow struct {
	model.Assignment
	RawIntervals types.NullJSONText `db:"intervals"`
}

type entryRow struct {
	PlaylistID int `db:"playlist_id"`
	ContentID  int `db:"content_id"`
	Position   int `db:"position"`
	Duration   int `db:"duration"`

	model.Content `db:"content"`
}

// @ CALENDAR
// ListAssignments returns every playlist bound to the calendar in the order the
// bindings were created, each with its playlist entries and their content.
func (s *pgStore) ListAssignments(ctx context.Context, calendarID int) ([]model.Assignment, error) {
	var rows []assignmentRow
	const q = `
	SELECT id, calendar_id, playlist_id, base, intervals
	  FROM calendar_playlists
	 WHERE calendar_id = $1
	 ORDER BY seq;`
	if err := s.db.SelectContext(ctx, &rows, q, calendarID); err != nil {
		log.Error().Err(err).Int("calendar_id", calendarID).Msg("[db] ListAssignments: failed to select assignments")
		return nil, err
	}

	playlists := make(map[int]model.Playlist)
	out := make([]model.Assignment, 0, len(rows))
	for _, r := range rows {
		a := r.Assignment
		if r.RawIntervals.Valid {
			if err := json.Unmarshal(r.RawIntervals.JSONText, &a.Intervals); err != nil {
				return nil, fmt.Errorf("assignment %s: %w", a.ID, err)
			}
		}

		p, ok := playlists[a.PlaylistID]
		if !ok {
			var err error
			p, err = s.getPlaylist(ctx, a.PlaylistID)
			if err != nil {
				return nil, err
			}
			playlists[a.PlaylistID] = p
		}
		a.Playlist = p
		out = append(out, a)
	}
	return out, nil
}

func (s *pgStore) getPlaylist(ctx context.Context, id int) (model.Playlist, error) {
	var p model.Playlist
	const q = `SELECT id, name, description, created_at FROM playlists WHERE id = $1;`
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		log.Error().Err(err).Int("playlist_id", id).Msg("[db] failed to get playlist")
		return model.Playlist{}, err
	}

	var rows []entryRow
	const eq = `
	SELECT
		pc.playlist_id,
		pc.content_id,
		pc.position,
		pc.duration,
		c.id         AS "content.id",
		c.name       AS "content.name",
		c.type       AS "content.type",
		c.url        AS "content.url",
		c.size       AS "content.size",
		c.md5        AS "content.md5",
		c.duration   AS "content.duration",
		c.width      AS "content.width",
		c.height     AS "content.height",
		c.created_at AS "content.created_at"
	FROM playlist_contents pc
	JOIN content c ON c.id = pc.content_id
	WHERE pc.playlist_id = $1
	ORDER BY pc.position;`
	if err := s.db.SelectContext(ctx, &rows, eq, id); err != nil {
		log.Error().Err(err).Int("playlist_id", id).Msg("[db] failed to load playlist entries")
		return model.Playlist{}, err
	}

	p.Entries = make([]model.PlaylistEntry, 0, len(rows))
	for _, r := range rows {
		p.Entries = append(p.Entries, model.PlaylistEntry{
			PlaylistID: r.PlaylistID,
			ContentID:  r.ContentID,
			Position:   r.Position,
			Duration:   r.Duration,
			Content:    r.Content,
		})
	}
	return p, nil
}
