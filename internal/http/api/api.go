package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/herald/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Status is a result that carries only an HTTP status and no body.
type Status int

type HandlerFuncWithAuth func(ctx *gin.Context, operator *model.Operator) (any, *APIError)
type HandlerFuncWithPlayer func(ctx *gin.Context, player *model.Player) (any, *APIError)
type HandlerFunc func(ctx *gin.Context) (any, *APIError)

func ResolveEndpointWithAuth(h HandlerFuncWithAuth) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		operator, ok := middleware.GetCurrentOperator(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		result, apiErr := h(ctx, operator)
		respond(ctx, result, apiErr)
	}
}

func ResolveEndpointWithPlayer(h HandlerFuncWithPlayer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		player, ok := middleware.GetCurrentPlayer(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		result, apiErr := h(ctx, player)
		respond(ctx, result, apiErr)
	}
}

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		respond(ctx, result, apiErr)
	}
}

func respond(ctx *gin.Context, result any, apiErr *APIError) {
	if apiErr != nil {
		ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
		return
	}
	if status, ok := result.(Status); ok {
		ctx.Status(int(status))
		return
	}
	ctx.JSON(http.StatusOK, result)
}
