package endpoints

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/device"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Sessions authenticates players and runs their sessions.
type Sessions interface {
	Authenticate(ctx context.Context, authorization string) (model.Player, error)
	Serve(ctx context.Context, p model.Player, ch device.Channel) error
}

// SocketModule mounts the player websocket. The credential travels in the
// "authorization" query parameter since browsers cannot set headers on
// websocket requests.
func SocketModule(sessions Sessions) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.RAW(http.MethodGet, "/socket", func(ctx *gin.Context) {
			player, err := sessions.Authenticate(ctx.Request.Context(), ctx.Query("authorization"))
			if err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, device.ErrBadScheme) {
					code = http.StatusBadRequest
				} else if !errors.Is(err, device.ErrUnauthorized) {
					code = http.StatusInternalServerError
				}
				api.Abort(ctx, &api.APIError{Code: code, Message: err.Error()})
				return
			}

			conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
			if err != nil {
				log.Warn().Err(err).Int("player_id", player.ID).Msg("websocket upgrade failed")
				return
			}
			conn.SetReadLimit(maxMessageSize)

			if err := sessions.Serve(ctx.Request.Context(), player, &wsChannel{conn: conn}); err != nil {
				log.Warn().Err(err).Int("player_id", player.ID).Msg("websocket session ended with error")
			}
		})
	})
}

// wsChannel adapts a gorilla connection to device.Channel.
type wsChannel struct {
	conn *websocket.Conn
}

func (w *wsChannel) Receive(_ context.Context) ([]byte, error) {
	for {
		kind, msg, err := w.conn.ReadMessage()
		if err != nil {
			if isClosed(err) {
				return nil, device.ErrChannelClosed
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (w *wsChannel) Send(ctx context.Context, msg []byte) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if isClosed(err) {
			return device.ErrChannelClosed
		}
		return err
	}
	return nil
}

func (w *wsChannel) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "away"),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// isClosed reports errors that mean the peer or we closed the connection.
func isClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent)
}
