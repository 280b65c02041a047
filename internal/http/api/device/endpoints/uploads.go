package endpoints

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api/device/packets"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
	"github.com/Nixie-Tech-LLC/herald/internal/storage"
)

type UploadStore interface {
	SetPlayerLastScreen(ctx context.Context, id int, ref model.FileRef) error
	SetPlayerLastLog(ctx context.Context, id int, ref model.FileRef) error
}

type UploadController struct {
	store UploadStore
	files storage.Storage
	now   func() time.Time
}

// UploadModule mounts screenshot and log uploads. The group must run
// PlayerMiddleware.
func UploadModule(store UploadStore, files storage.Storage) api.Module {
	ctl := &UploadController{store: store, files: files, now: time.Now}
	return api.ModuleFunc(func(c *api.Controller) {
		c.PLAYER_POST("/screenshot", ctl.uploadScreenshot)
		c.PLAYER_POST("/log", ctl.uploadLog)
	})
}

// POST /v3/device/screenshot
func (u *UploadController) uploadScreenshot(ctx *gin.Context, player *model.Player) (any, *api.APIError) {
	ref, apiErr := u.save(ctx, player, "jpg")
	if apiErr != nil {
		return nil, apiErr
	}
	if err := u.store.SetPlayerLastScreen(ctx.Request.Context(), player.ID, ref); err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not record screenshot"}
	}
	return uploadResponse(ref), nil
}

// POST /v3/device/log
func (u *UploadController) uploadLog(ctx *gin.Context, player *model.Player) (any, *api.APIError) {
	ref, apiErr := u.save(ctx, player, "zip")
	if apiErr != nil {
		return nil, apiErr
	}
	if err := u.store.SetPlayerLastLog(ctx.Request.Context(), player.ID, ref); err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not record log"}
	}
	return uploadResponse(ref), nil
}

func (u *UploadController) save(ctx *gin.Context, player *model.Player, ext string) (model.FileRef, *api.APIError) {
	header, err := ctx.FormFile("file")
	if err != nil {
		return model.FileRef{}, &api.APIError{Code: http.StatusBadRequest, Message: "file is required"}
	}
	src, err := header.Open()
	if err != nil {
		return model.FileRef{}, &api.APIError{Code: http.StatusBadRequest, Message: "could not read file"}
	}
	defer src.Close()

	now := u.now().UTC()
	key := storage.ObjectKey(ext, now)
	url, err := u.files.Save(ctx.Request.Context(), key, src, storage.ContentType(key))
	if err != nil {
		log.Error().Err(err).Int("player_id", player.ID).Msg("failed to store upload")
		return model.FileRef{}, &api.APIError{Code: http.StatusInternalServerError, Message: "could not store file"}
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "/" + strings.TrimPrefix(url, "/")
	}

	log.Info().Int("player_id", player.ID).Str("url", url).Msg("player upload stored")
	return model.FileRef{URL: url, CreatedAt: now}, nil
}

func uploadResponse(ref model.FileRef) packets.UploadResponse {
	return packets.UploadResponse{URL: ref.URL, CreatedAt: ref.CreatedAt.Format(time.RFC3339)}
}
