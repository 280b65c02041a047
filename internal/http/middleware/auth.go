package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/device"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// is returned when email/password don’t match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// uses bcrypt to hash a plaintext password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// compares a bcrypt hash with the plaintext.
func CheckPassword(hash, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}

// retrieves *model.Operator from Gin context (after JWTMiddleware has run).
func GetCurrentOperator(c *gin.Context) (*model.Operator, bool) {
	v, exists := c.Get("currentOperator")
	if !exists {
		return nil, false
	}
	op, ok := v.(*model.Operator)
	return op, ok
}

type PlayerResolver interface {
	GetPlayerByToken(ctx context.Context, token string) (model.Player, error)
}

// checks “Authorization: OAuth <token>”, loads the player and sets “currentPlayer” in context.
func PlayerMiddleware(players PlayerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := device.ParseAuthorization(c.GetHeader("Authorization"))
		switch {
		case errors.Is(err, device.ErrBadScheme):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "authorization scheme must be OAuth"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth header"})
			return
		}

		p, err := players.GetPlayerByToken(c.Request.Context(), token)
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve player token")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not resolve player"})
			return
		}
		c.Set("currentPlayer", &p)
		c.Next()
	}
}

// retrieves *model.Player from Gin context (after PlayerMiddleware has run).
func GetCurrentPlayer(c *gin.Context) (*model.Player, bool) {
	v, exists := c.Get("currentPlayer")
	if !exists {
		return nil, false
	}
	p, ok := v.(*model.Player)
	return p, ok
}

// logs each request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		evt := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}
