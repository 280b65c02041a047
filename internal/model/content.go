package model

import "time"

// Content kinds understood by players.
const (
	ContentImage = "image"
	ContentVideo = "video"
	ContentHTML  = "html"
	ContentURL   = "url"
)

type Content struct {
	ID        int       `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Type      string    `db:"type"       json:"type"`
	URL       string    `db:"url"        json:"url"`
	Size      int64     `db:"size"       json:"size"`
	MD5       string    `db:"md5"        json:"md5"`
	Duration  int       `db:"duration"   json:"duration"`
	Width     int       `db:"width"      json:"width"`
	Height    int       `db:"height"     json:"height"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasStoredFile reports whether the content is backed by an uploaded file
// rather than a bare URL.
func (c Content) HasStoredFile() bool {
	return c.Type != ContentURL && c.MD5 != ""
}
