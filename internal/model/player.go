package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// UnknownPercent marks a synchronization progress the device has not reported.
const UnknownPercent = -1

// Player represents a display device in the system.
// Online status is never stored; it comes from the live connection registry.
type Player struct {
	ID          int        `db:"id"           json:"id"`
	Name        string     `db:"name"         json:"name"`
	CalendarID  *int       `db:"calendar_id"  json:"calendar_id"`
	Token       string     `db:"token"        json:"-"`
	Pin         *string    `db:"pin"          json:"pin,omitempty"`
	Platform    *string    `db:"platform"     json:"platform"`
	Timezone    *string    `db:"timezone"     json:"timezone"`
	IsActivated bool       `db:"is_activated" json:"is_activated"`
	Version     *string    `db:"version"      json:"version"`
	DeviceTime  *time.Time `db:"device_time"  json:"device_time"`
	LastSync    *time.Time `db:"last_sync"    json:"last_sync"`
	LastOnline  *time.Time `db:"last_online"  json:"last_online"`
	Data        int        `db:"data"         json:"data"`
	Percent     int        `db:"percent"      json:"percent"`
	LastScreen  *FileRef   `db:"last_screen"  json:"last_screen"`
	LastLog     *FileRef   `db:"last_log"     json:"last_log"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}

// FileRef points at an uploaded screenshot or log archive.
type FileRef struct {
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

func (f FileRef) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *FileRef) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return errors.New("model: unsupported FileRef source")
	}
}
