package runstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Run statuses over the run lifecycle.
const (
	StatusActive             = "active"
	StatusDead               = "dead"
	StatusAwaitingSettlement = "awaiting_settlement"
	StatusSettled            = "settled"
)

// Run represents the game_runs table. State holds the full engine snapshot
// as JSON so the engine schema can evolve without migrations.
type Run struct {
	RunID         string         `gorm:"type:uuid;primaryKey"`
	PlayerAddress string         `gorm:"not null;index:idx_runs_player_status,priority:1"`
	Status        string         `gorm:"not null;index:idx_runs_player_status,priority:2"`
	State         datatypes.JSON `gorm:"not null"`
	SettlementID  *string        `gorm:""`
	FinalNetWorth int64          `gorm:""`
	DaysPlayed    int64          `gorm:""`
	Signature     *string        `gorm:""`
	IceAwarded    int64          `gorm:""`
	DidWin        bool           `gorm:""`
	WonAtDay      int            `gorm:""`
	TxHash        *string        `gorm:""`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (Run) TableName() string { return "game_runs" }

func (run *Run) BeforeCreate(tx *gorm.DB) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	return nil
}

// Player represents the players table: lifetime aggregates used by the
// leaderboard.
type Player struct {
	PlayerAddress string    `gorm:"primaryKey"`
	TotalIce      int64     `gorm:"not null;default:0"`
	BestNetWorth  int64     `gorm:"not null;default:0"`
	RunsSettled   int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Player) TableName() string { return "players" }
