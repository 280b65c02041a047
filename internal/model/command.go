package model

import "time"

// Command names a player understands.
const (
	CommandSynchronize    = "synchronize"
	CommandTakeScreenshot = "take-screenshot"
	CommandUploadLogs     = "upload-logs"
)

// Command is a directive waiting for the player to acknowledge it.
type Command struct {
	ID        int       `db:"id"         json:"id"`
	PlayerID  int       `db:"player_id"  json:"-"`
	Command   string    `db:"command"    json:"command"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}
