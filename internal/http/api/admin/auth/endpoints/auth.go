package endpoints

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api/admin/auth/packets"
	"github.com/Nixie-Tech-LLC/herald/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// AuthPublicModule mounts the public login endpoint (/auth/login)
func AuthPublicModule(jwtSecret string, operator model.Operator) api.Module {
	ctl := newAccountManager(jwtSecret, operator)
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_POST("/auth/login", ctl.operatorLogin)
	})
}

// AuthSessionModule mounts private session endpoints (JWT required)
func AuthSessionModule(jwtSecret string, operator model.Operator) api.Module {
	ctl := newAccountManager(jwtSecret, operator)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/auth/current_profile", ctl.getCurrentProfile)
	})
}

type AccountManager struct {
	jwtSecret string
	operator  model.Operator
}

func newAccountManager(secret string, operator model.Operator) *AccountManager {
	return &AccountManager{jwtSecret: secret, operator: operator}
}

// POST /api/admin/auth/login
func (a *AccountManager) operatorLogin(ctx *gin.Context) (any, *api.APIError) {
	var request packets.LoginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	if a.operator.Email == "" || a.operator.HashedPassword == "" ||
		!strings.EqualFold(request.Email, a.operator.Email) ||
		!middleware.CheckPassword(a.operator.HashedPassword, request.Password) {
		log.Warn().Str("email", request.Email).Msg("operator login rejected")
		return nil, &api.APIError{Code: http.StatusUnauthorized, Message: middleware.ErrInvalidCredentials.Error()}
	}

	token, err := middleware.GenerateJWT(a.operator.Email, a.jwtSecret)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not generate token"}
	}

	return packets.TokenResponse{Token: token}, nil
}

// GET /api/admin/auth/current_profile
func (a *AccountManager) getCurrentProfile(ctx *gin.Context, operator *model.Operator) (any, *api.APIError) {
	return packets.ProfileResponse{Email: operator.Email}, nil
}
