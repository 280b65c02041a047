package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
	"github.com/Nixie-Tech-LLC/herald/internal/schedule"
)

// Compiler builds a player's content package.
type Compiler interface {
	Compile(ctx context.Context, p model.Player, baseURL string) (*model.SyncPackage, error)
}

// DataModule mounts the schedule pull. The group must run PlayerMiddleware.
func DataModule(compiler Compiler, publicURL string) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.PLAYER_GET("/data", func(ctx *gin.Context, player *model.Player) (any, *api.APIError) {
			pkg, err := compiler.Compile(ctx.Request.Context(), *player, baseURL(ctx, publicURL))
			if errors.Is(err, schedule.ErrUnsupportedContent) {
				return nil, &api.APIError{Code: http.StatusBadGateway, Message: err.Error()}
			}
			if err != nil {
				log.Error().Err(err).Int("player_id", player.ID).Msg("schedule pull failed")
				return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not compile schedule"}
			}
			return pkg, nil
		})
	})
}

// baseURL is the public root of this server, always ending in a slash.
func baseURL(ctx *gin.Context, publicURL string) string {
	if publicURL == "" {
		scheme := "http"
		if ctx.Request.TLS != nil || ctx.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		publicURL = scheme + "://" + ctx.Request.Host
	}
	return strings.TrimSuffix(publicURL, "/") + "/"
}
