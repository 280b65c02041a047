package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api/admin/control/packets"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// Dispatcher is the command path into connected players.
type Dispatcher interface {
	RequestSync(ctx context.Context, playerID int) error
	SendCommand(ctx context.Context, playerID int, name string) (bool, error)
	MarkSyncPending(playerID int)
	SyncAll(ctx context.Context) (int, error)
	AnySyncPending() bool
	Deactivate(playerID int) bool
	Online(playerID int) bool
	OnlinePlayers() []int
	PendingCommands(ctx context.Context, playerID int) ([]model.Command, error)
}

type PlayerController struct {
	store    db.Store
	dispatch Dispatcher
}

func newPlayerController(store db.Store, dispatch Dispatcher) *PlayerController {
	return &PlayerController{store: store, dispatch: dispatch}
}

// PlayerModule mounts all authenticated /players endpoints.
func PlayerModule(store db.Store, dispatch Dispatcher) api.Module {
	ctl := newPlayerController(store, dispatch)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/players/online", ctl.listOnline)
		c.GET("/players/:id", ctl.getPlayer)

		// direct dispatch
		c.PUT("/players/:id/sync", ctl.syncPlayer)
		c.POST("/players/:id/pending-sync", ctl.markPendingSync)
		c.POST("/players/:id/screenshot", ctl.requestScreenshot)
		c.POST("/players/:id/logs", ctl.requestLogs)
		c.PUT("/players/:id/deactivate", ctl.deactivatePlayer)

		// last uploads
		c.GET("/players/:id/screenshot", ctl.getScreenshot)
		c.GET("/players/:id/logs", ctl.getLogs)
	})
}

func (p *PlayerController) loadPlayer(ctx *gin.Context) (model.Player, *api.APIError) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return model.Player{}, &api.APIError{Code: http.StatusBadRequest, Message: "invalid player id"}
	}
	player, err := p.store.GetPlayerByID(ctx.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return model.Player{}, &api.APIError{Code: http.StatusNotFound, Message: "player not found"}
	}
	if err != nil {
		return model.Player{}, &api.APIError{Code: http.StatusInternalServerError, Message: "could not load player"}
	}
	return player, nil
}

// GET /api/admin/players/online
func (p *PlayerController) listOnline(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
	return packets.OnlineResponse{Players: p.dispatch.OnlinePlayers()}, nil
}

// GET /api/admin/players/:id
func (p *PlayerController) getPlayer(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}

	cmds, err := p.dispatch.PendingCommands(ctx.Request.Context(), player.ID)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not load commands"}
	}

	return playerResponse(player, p.dispatch.Online(player.ID), cmds), nil
}

// PUT /api/admin/players/:id/sync
func (p *PlayerController) syncPlayer(ctx *gin.Context, op *model.Operator) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	if err := p.dispatch.RequestSync(ctx.Request.Context(), player.ID); err != nil {
		log.Error().Err(err).Int("player_id", player.ID).Msg("sync request failed")
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not sync player"}
	}
	log.Info().Int("player_id", player.ID).Str("operator", op.Email).Msg("sync requested")
	return packets.DispatchResponse{
		PlayerID:  player.ID,
		Command:   model.CommandSynchronize,
		Delivered: p.dispatch.Online(player.ID),
	}, nil
}

// POST /api/admin/players/:id/pending-sync
func (p *PlayerController) markPendingSync(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	p.dispatch.MarkSyncPending(player.ID)
	return api.Status(http.StatusAccepted), nil
}

// POST /api/admin/players/:id/screenshot
func (p *PlayerController) requestScreenshot(ctx *gin.Context, op *model.Operator) (any, *api.APIError) {
	return p.sendCommand(ctx, op, model.CommandTakeScreenshot)
}

// POST /api/admin/players/:id/logs
func (p *PlayerController) requestLogs(ctx *gin.Context, op *model.Operator) (any, *api.APIError) {
	return p.sendCommand(ctx, op, model.CommandUploadLogs)
}

func (p *PlayerController) sendCommand(ctx *gin.Context, op *model.Operator, name string) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	delivered, err := p.dispatch.SendCommand(ctx.Request.Context(), player.ID, name)
	if err != nil {
		log.Error().Err(err).Int("player_id", player.ID).Str("command", name).Msg("command dispatch failed")
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not queue command"}
	}
	log.Info().Int("player_id", player.ID).Str("command", name).Str("operator", op.Email).Msg("command queued")
	return packets.DispatchResponse{PlayerID: player.ID, Command: name, Delivered: delivered}, nil
}

// PUT /api/admin/players/:id/deactivate
func (p *PlayerController) deactivatePlayer(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	p.dispatch.Deactivate(player.ID)
	return api.Status(http.StatusNoContent), nil
}

// GET /api/admin/players/:id/screenshot
func (p *PlayerController) getScreenshot(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	return fileResponse(player.LastScreen)
}

// GET /api/admin/players/:id/logs
func (p *PlayerController) getLogs(ctx *gin.Context, _ *model.Operator) (any, *api.APIError) {
	player, apiErr := p.loadPlayer(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	return fileResponse(player.LastLog)
}

func fileResponse(ref *model.FileRef) (any, *api.APIError) {
	if ref == nil {
		return nil, &api.APIError{Code: http.StatusNotFound, Message: "nothing uploaded yet"}
	}
	return packets.FileResponse{URL: ref.URL, CreatedAt: ref.CreatedAt.Format(time.RFC3339)}, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func playerResponse(p model.Player, online bool, cmds []model.Command) packets.PlayerResponse {
	out := packets.PlayerResponse{
		ID:          p.ID,
		Name:        p.Name,
		CalendarID:  p.CalendarID,
		Platform:    p.Platform,
		Timezone:    p.Timezone,
		IsActivated: p.IsActivated,
		Online:      online,
		Version:     p.Version,
		DeviceTime:  formatTime(p.DeviceTime),
		LastSync:    formatTime(p.LastSync),
		LastOnline:  formatTime(p.LastOnline),
		Data:        p.Data,
		Percent:     p.Percent,
		LastScreen:  p.LastScreen,
		LastLog:     p.LastLog,
		Commands:    make([]packets.CommandResponse, 0, len(cmds)),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
	if online {
		out.LastOnline = nil
	}
	for _, c := range cmds {
		out.Commands = append(out.Commands, packets.CommandResponse{ID: c.ID, Command: c.Command})
	}
	return out
}
