package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api/device/packets"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// DefaultTimezone is reported to players that have none configured.
const DefaultTimezone = "Europe/Moscow"

type ActivationStore interface {
	GetPlayerByPin(ctx context.Context, pin string) (model.Player, error)
	ActivatePlayer(ctx context.Context, id int, platform string) error
}

// EntrypointModule mounts the public endpoints a player uses before it has
// a token.
func EntrypointModule(store ActivationStore, publicURL string) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_POST("/activate", func(ctx *gin.Context) (any, *api.APIError) {
			return activate(ctx, store, publicURL)
		})
		c.PUBLIC_GET("/time", func(ctx *gin.Context) (any, *api.APIError) {
			return time.Now().UTC().Format(time.RFC3339), nil
		})
		c.PUBLIC_GET("/ping", func(ctx *gin.Context) (any, *api.APIError) {
			return "pong", nil
		})
	})
}

// POST /v3/entrypoint/activate
func activate(ctx *gin.Context, store ActivationStore, publicURL string) (any, *api.APIError) {
	var request packets.ActivateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	player, err := store.GetPlayerByPin(ctx.Request.Context(), request.Pin)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &api.APIError{Code: http.StatusUnprocessableEntity, Message: "unknown pin"}
	}
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not look up pin"}
	}
	if player.IsActivated {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "player already activated"}
	}

	if err := store.ActivatePlayer(ctx.Request.Context(), player.ID, request.Platform); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &api.APIError{Code: http.StatusBadRequest, Message: "player already activated"}
		}
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not activate player"}
	}

	tz := DefaultTimezone
	if player.Timezone != nil && *player.Timezone != "" {
		tz = *player.Timezone
	}
	log.Info().Int("player_id", player.ID).Str("platform", request.Platform).Msg("player activated")

	return packets.ActivateResponse{Configuration: packets.Configuration{
		DeviceID:    player.ID,
		BackendURL:  strings.TrimSuffix(baseURL(ctx, publicURL), "/"),
		AccessToken: player.Token,
		Timezone:    tz,
	}}, nil
}
