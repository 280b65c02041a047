package model

import "time"

type Playlist struct {
	ID          int             `db:"id"           json:"id"`
	Name        string          `db:"name"         json:"name"`
	Description *string         `db:"description"  json:"description,omitempty"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
	Entries     []PlaylistEntry `db:"-"            json:"entries,omitempty"`
}

// PlaylistEntry is one position in a playlist. Duration overrides how long
// the content stays on screen, in seconds.
type PlaylistEntry struct {
	PlaylistID int     `db:"playlist_id" json:"playlist_id"`
	ContentID  int     `db:"content_id"  json:"content_id"`
	Position   int     `db:"position"    json:"position"`
	Duration   int     `db:"duration"    json:"duration"`
	Content    Content `db:"-"           json:"content"`
}
