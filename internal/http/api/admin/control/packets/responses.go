package packets

// RESPONSES FOR /api/admin/players/* and /api/admin/sync

import "github.com/Nixie-Tech-LLC/herald/internal/model"

// PlayerResponse mirrors model.Player with the live online flag and times
// flattened to RFC3339.
type PlayerResponse struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	CalendarID  *int              `json:"calendar_id"`
	Platform    *string           `json:"platform"`
	Timezone    *string           `json:"timezone"`
	IsActivated bool              `json:"is_activated"`
	Online      bool              `json:"online"`
	Version     *string           `json:"version"`
	DeviceTime  *string           `json:"device_time"`
	LastSync    *string           `json:"last_sync"`
	LastOnline  *string           `json:"last_online"`
	Data        int               `json:"data"`
	Percent     int               `json:"percent"`
	LastScreen  *model.FileRef    `json:"last_screen"`
	LastLog     *model.FileRef    `json:"last_log"`
	Commands    []CommandResponse `json:"commands"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

type CommandResponse struct {
	ID      int    `json:"id"`
	Command string `json:"command"`
}

// DispatchResponse tells whether the command list reached the player now or
// waits for its next round trip.
type DispatchResponse struct {
	PlayerID  int    `json:"player_id"`
	Command   string `json:"command"`
	Delivered bool   `json:"delivered"`
}

type OnlineResponse struct {
	Players []int `json:"players"`
}

type SyncAllResponse struct {
	Synced int `json:"synced"`
}

type FileResponse struct {
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}
