// Package mqtt lets players hold their session over an MQTT broker instead of
// a websocket.
//
// A player announces itself on players/connect with its credential, sends its
// frames to players/<id>/telemetry and receives command lists on
// players/<id>/commands.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/device"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

const (
	TopicConnect      = "players/connect"
	topicTelemetry    = "players/+/telemetry"
	topicDisconnect   = "players/+/disconnect"
	qos               = 1
	inboxSize         = 16
	disconnectQuiesce = 250
)

// Sessions is the part of the device service the bridge drives.
type Sessions interface {
	Authenticate(ctx context.Context, authorization string) (model.Player, error)
	Serve(ctx context.Context, p model.Player, ch device.Channel) error
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type connectRequest struct {
	Authorization string `json:"authorization"`
}

// Bridge turns MQTT topics into device sessions.
type Bridge struct {
	client   publisher
	sessions Sessions

	mu       sync.Mutex
	channels map[int]*channel
}

func NewBridge(client publisher, sessions Sessions) *Bridge {
	return &Bridge{
		client:   client,
		sessions: sessions,
		channels: make(map[int]*channel),
	}
}

// Connect opens an MQTT client against brokerURL.
func Connect(brokerURL, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(paho.Client) {
		log.Info().Str("broker", brokerURL).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// Start subscribes the bridge's topics on client.
func (b *Bridge) Start(ctx context.Context, client paho.Client) error {
	subs := map[string]paho.MessageHandler{
		TopicConnect: func(_ paho.Client, msg paho.Message) {
			b.handleConnect(ctx, msg.Payload())
		},
		topicTelemetry: func(_ paho.Client, msg paho.Message) {
			b.handleTelemetry(msg.Topic(), msg.Payload())
		},
		topicDisconnect: func(_ paho.Client, msg paho.Message) {
			b.handleDisconnect(msg.Topic())
		},
	}
	for topic, handler := range subs {
		if token := client.Subscribe(topic, qos, handler); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}
	log.Info().Msg("MQTT bridge listening for players")
	return nil
}

// Disconnect waits briefly for in-flight work before closing client.
func Disconnect(client paho.Client) {
	client.Disconnect(disconnectQuiesce)
	log.Info().Msg("MQTT client disconnected")
}

// Close ends every bridged session.
func (b *Bridge) Close() {
	b.mu.Lock()
	chans := make([]*channel, 0, len(b.channels))
	for _, ch := range b.channels {
		chans = append(chans, ch)
	}
	b.mu.Unlock()
	for _, ch := range chans {
		ch.Close()
	}
}

func (b *Bridge) handleConnect(ctx context.Context, payload []byte) {
	var req connectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Msg("malformed MQTT connect request")
		return
	}
	p, err := b.sessions.Authenticate(ctx, req.Authorization)
	if err != nil {
		log.Warn().Err(err).Msg("rejected MQTT player")
		return
	}

	ch := b.open(p.ID)
	go func() {
		if err := b.sessions.Serve(ctx, p, ch); err != nil {
			log.Warn().Err(err).Int("player_id", p.ID).Msg("MQTT session ended with error")
		}
	}()
}

func (b *Bridge) open(playerID int) *channel {
	ch := &channel{
		playerID: playerID,
		topic:    commandsTopic(playerID),
		client:   b.client,
		in:       make(chan []byte, inboxSize),
		closed:   make(chan struct{}),
	}
	ch.onClose = func() { b.release(ch) }

	b.mu.Lock()
	b.channels[playerID] = ch
	b.mu.Unlock()
	return ch
}

func (b *Bridge) release(ch *channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels[ch.playerID] == ch {
		delete(b.channels, ch.playerID)
	}
}

func (b *Bridge) lookup(topic string) (*channel, bool) {
	id, ok := playerFromTopic(topic)
	if !ok {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[id]
	return ch, ok
}

func (b *Bridge) handleTelemetry(topic string, payload []byte) {
	ch, ok := b.lookup(topic)
	if !ok {
		log.Debug().Str("topic", topic).Msg("telemetry from player without a session")
		return
	}
	ch.deliver(payload)
}

func (b *Bridge) handleDisconnect(topic string) {
	if ch, ok := b.lookup(topic); ok {
		ch.Close()
	}
}

func commandsTopic(playerID int) string {
	return "players/" + strconv.Itoa(playerID) + "/commands"
}

// playerFromTopic reads the id out of players/<id>/<kind>.
func playerFromTopic(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "players" {
		return 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// channel is a device.Channel backed by two MQTT topics.
type channel struct {
	playerID int
	topic    string
	client   publisher
	in       chan []byte
	closed   chan struct{}
	once     sync.Once
	onClose  func()
}

func (c *channel) deliver(msg []byte) {
	select {
	case <-c.closed:
	case c.in <- msg:
	default:
		log.Warn().Int("player_id", c.playerID).Msg("dropping MQTT frame, session is behind")
	}
}

func (c *channel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, device.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *channel) Send(ctx context.Context, msg []byte) error {
	token := c.client.Publish(c.topic, qos, false, msg)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("publish to %s timed out", c.topic)
	}
}

func (c *channel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}
