package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Calendar struct {
	ID        int       `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Color     *string   `db:"color"      json:"color"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Assignment binds a playlist to a calendar. The base assignment has no
// intervals and acts as the fallback; every other assignment is active only
// within its weekday intervals.
type Assignment struct {
	ID         string      `db:"id"          json:"id"`
	CalendarID int         `db:"calendar_id" json:"calendar_id"`
	PlaylistID int         `db:"playlist_id" json:"playlist_id"`
	Base       bool        `db:"base"        json:"base"`
	Intervals  IntervalMap `db:"-"           json:"intervals"`
	Playlist   Playlist    `db:"-"           json:"playlist"`
}

// Interval is a daily window in minutes after midnight.
type Interval struct {
	Weekday int `json:"-"`
	Start   int `json:"st"`
	End     int `json:"end"`
}

// IntervalMap maps ISO weekday (0-6) to a daily window. It keeps the order
// in which the weekdays were written, which decides the representative window
// of a compiled schedule.
type IntervalMap []Interval

// Weekdays lists the weekdays present, in map order.
func (m IntervalMap) Weekdays() []int {
	days := make([]int, 0, len(m))
	for _, iv := range m {
		days = append(days, iv.Weekday)
	}
	return days
}

func (m IntervalMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, iv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `"%d":{"st":%d,"end":%d}`, iv.Weekday, iv.Start, iv.End)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *IntervalMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("intervals: expected object, got %v", tok)
	}

	out := IntervalMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		day, err := strconv.Atoi(key)
		if err != nil || day < 0 || day > 6 {
			return fmt.Errorf("intervals: invalid weekday %q", key)
		}
		var iv Interval
		if err := dec.Decode(&iv); err != nil {
			return fmt.Errorf("intervals: weekday %d: %w", day, err)
		}
		iv.Weekday = day
		out = append(out, iv)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
