package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/herald/internal/config"
	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/device"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	authapi "github.com/Nixie-Tech-LLC/herald/internal/http/api/admin/auth/endpoints"
	adminapi "github.com/Nixie-Tech-LLC/herald/internal/http/api/admin/control/endpoints"
	deviceapi "github.com/Nixie-Tech-LLC/herald/internal/http/api/device/endpoints"
	"github.com/Nixie-Tech-LLC/herald/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
	"github.com/Nixie-Tech-LLC/herald/internal/storage"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, store db.Store, sessions *device.Service, compiler deviceapi.Compiler, files storage.Storage) {
	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
		},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: false,
	}))

	operator := model.Operator{Email: cfg.OperatorEmail, HashedPassword: cfg.OperatorPasswordHash}

	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api/admin",
		Auth:   false,
	},
		authapi.AuthPublicModule(cfg.JWTSecret, operator),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:    "/api/admin",
		Auth:      true,
		SecretKey: cfg.JWTSecret,
	},
		// control modules
		adminapi.PlayerModule(store, sessions),
		adminapi.SyncModule(sessions),
		// session endpoints that require auth
		authapi.AuthSessionModule(cfg.JWTSecret, operator),
	)

	// player-facing surface
	api.MountGroup(r, api.GroupConfig{
		Prefix: "/v3/entrypoint",
	},
		deviceapi.EntrypointModule(store, cfg.PublicURL),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:     "/v3/device",
		Middleware: []gin.HandlerFunc{middleware.PlayerMiddleware(store)},
	},
		deviceapi.UploadModule(store, files),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:     "/v4/device",
		Middleware: []gin.HandlerFunc{middleware.PlayerMiddleware(store)},
	},
		deviceapi.DataModule(compiler, cfg.PublicURL),
	)

	// the socket authenticates from its query string, outside PlayerMiddleware
	api.MountGroup(r, api.GroupConfig{
		Prefix: "/v4/device",
	},
		deviceapi.SocketModule(sessions),
	)

	// Static content
	if !cfg.UseSpaces {
		r.Static("/"+storage.LocalPrefix, cfg.UploadDir)
	}
}
