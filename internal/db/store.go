// exposes a Store interface that is passed to the services and API modules
package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

type Store interface {
	// player functions
	GetPlayerByID(ctx context.Context, id int) (model.Player, error)
	GetPlayerByToken(ctx context.Context, token string) (model.Player, error)
	GetPlayerByPin(ctx context.Context, pin string) (model.Player, error)
	ActivatePlayer(ctx context.Context, id int, platform string) error
	UpdatePlayerTelemetry(ctx context.Context, p model.Player) error
	TouchPlayerLastOnline(ctx context.Context, id int, at time.Time) error
	SetPlayerLastScreen(ctx context.Context, id int, ref model.FileRef) error
	SetPlayerLastLog(ctx context.Context, id int, ref model.FileRef) error

	// calendar functions
	ListAssignments(ctx context.Context, calendarID int) ([]model.Assignment, error)

	// command functions
	ListCommands(ctx context.Context, playerID int) ([]model.Command, error)
	InsertCommand(ctx context.Context, playerID int, name string) (model.Command, bool, error)
	DeleteCommand(ctx context.Context, playerID, commandID int) (bool, error)
}

type pgStore struct {
	db *sqlx.DB
}

// compile-time check that pgStore implements Store
var _ Store = (*pgStore)(nil)

func NewStore(conn *sqlx.DB) Store {
	return &pgStore{db: conn}
}
