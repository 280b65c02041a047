package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api/admin/control/packets"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// SyncModule mounts the fleet-wide sync endpoints.
func SyncModule(dispatch Dispatcher) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/sync", func(ctx *gin.Context, op *model.Operator) (any, *api.APIError) {
			n, err := dispatch.SyncAll(ctx.Request.Context())
			if err != nil {
				log.Error().Err(err).Int("synced", n).Msg("sync all finished with errors")
				return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "some players could not be synced"}
			}
			log.Info().Int("synced", n).Str("operator", op.Email).Msg("synced pending players")
			return packets.SyncAllResponse{Synced: n}, nil
		})

		// 200 while any player waits for a sync, 204 otherwise
		c.GET("/sync", func(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
			if dispatch.AnySyncPending() {
				return api.Status(http.StatusOK), nil
			}
			return api.Status(http.StatusNoContent), nil
		})
	})
}
