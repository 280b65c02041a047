package packets

// REQUESTS AND RESPONSES FOR /v3/entrypoint/* and /v3/device/*

// body for activating a player by its PIN
type ActivateRequest struct {
	Pin      string `json:"pin" binding:"required"`
	Platform string `json:"platform" binding:"required"`
}

type ActivateResponse struct {
	Configuration Configuration `json:"configuration"`
}

// Configuration is everything a freshly activated player needs to reach us.
type Configuration struct {
	DeviceID    int    `json:"device_id"`
	BackendURL  string `json:"backend_url"`
	AccessToken string `json:"access_token"`
	Timezone    string `json:"timezone"`
}

type UploadResponse struct {
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}
