package device

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// CommandStore is the durable side of the command queue.
type CommandStore interface {
	ListCommands(ctx context.Context, playerID int) ([]model.Command, error)
	InsertCommand(ctx context.Context, playerID int, name string) (model.Command, bool, error)
	DeleteCommand(ctx context.Context, playerID, commandID int) (bool, error)
}

// CommandQueue is the per-player list of commands awaiting acknowledgment.
type CommandQueue struct {
	store CommandStore
}

func NewCommandQueue(store CommandStore) *CommandQueue {
	return &CommandQueue{store: store}
}

// Enqueue adds name unless the player already has it pending. It reports
// whether the queue grew.
func (q *CommandQueue) Enqueue(ctx context.Context, playerID int, name string) (model.Command, bool, error) {
	c, created, err := q.store.InsertCommand(ctx, playerID, name)
	if err != nil {
		return model.Command{}, false, fmt.Errorf("enqueue %q for player %d: %w", name, playerID, err)
	}
	if created {
		log.Debug().Int("player_id", playerID).Int("command_id", c.ID).Str("command", name).Msg("command queued")
	}
	return c, created, nil
}

// Ack retires the acknowledged commands. Ids the player does not have pending
// are ignored. It returns how many commands were removed.
func (q *CommandQueue) Ack(ctx context.Context, playerID int, ids []int) (int, error) {
	removed := 0
	for _, id := range ids {
		ok, err := q.store.DeleteCommand(ctx, playerID, id)
		if err != nil {
			return removed, fmt.Errorf("ack command %d for player %d: %w", id, playerID, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Pending returns the full pending list, never nil.
func (q *CommandQueue) Pending(ctx context.Context, playerID int) ([]model.Command, error) {
	cmds, err := q.store.ListCommands(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("list commands for player %d: %w", playerID, err)
	}
	if cmds == nil {
		cmds = []model.Command{}
	}
	return cmds, nil
}
