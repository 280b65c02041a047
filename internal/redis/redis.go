package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	flushChannel = "herald:players:flush"
	publishTTL   = 5 * time.Second
)

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, address, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Username: username,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", address, err)
	}
	log.Info().Str("address", address).Msg("connected to redis")
	return rdb, nil
}

// flushPayload asks every instance to push the pending list to a player it
// holds a connection for.
type flushPayload struct {
	PlayerID int    `json:"player_id"`
	Origin   string `json:"origin"`
	At       int64  `json:"at"`
}

// Relay carries flush requests between server instances, so a command queued
// on one instance reaches a player connected to another.
type Relay struct {
	client *redis.Client
	origin string
}

func NewRelay(client *redis.Client) *Relay {
	return &Relay{client: client, origin: uuid.NewString()}
}

func (r *Relay) PublishFlush(ctx context.Context, playerID int) error {
	body, err := encodeFlush(r.origin, playerID, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTTL)
	defer cancel()
	return r.client.Publish(ctx, flushChannel, body).Err()
}

// Subscribe calls handler for every flush published by another instance
// until ctx is done.
func (r *Relay) Subscribe(ctx context.Context, handler func(ctx context.Context, playerID int)) error {
	pubsub := r.client.Subscribe(ctx, flushChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", flushChannel, err)
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				id, ok := decodeFlush(r.origin, msg.Payload)
				if !ok {
					continue
				}
				handler(ctx, id)
			}
		}
	}()
	return nil
}

func encodeFlush(origin string, playerID int, at time.Time) ([]byte, error) {
	return json.Marshal(flushPayload{PlayerID: playerID, Origin: origin, At: at.Unix()})
}

// decodeFlush returns the player id of a flush from another instance.
func decodeFlush(self, payload string) (int, bool) {
	var p flushPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		log.Warn().Err(err).Msg("malformed flush message")
		return 0, false
	}
	if p.Origin == self || p.PlayerID <= 0 {
		return 0, false
	}
	return p.PlayerID, true
}
