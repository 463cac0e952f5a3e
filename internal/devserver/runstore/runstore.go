// Package runstore persists game runs and player aggregates using GORM. It
// supports PostgreSQL and SQLite through the same store.
package runstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sentinel errors surfaced to the server layer.
var (
	ErrNoActiveRun = errors.New("no active run")
	ErrRunNotFound = errors.New("run not found")
)

// Store wraps a gorm.DB with run and player operations.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Intended for SQLite and test databases;
// production PostgreSQL schemas are managed externally.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(&Run{}, &Player{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// ActiveRun returns the player's active run.
func (store *Store) ActiveRun(ctx context.Context, playerAddress string) (*Run, error) {
	var run Run
	err := store.db.WithContext(ctx).
		Where("player_address = ? AND status = ?", playerAddress, StatusActive).
		Order("created_at DESC").
		Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveRun
		}
		return nil, err
	}
	return &run, nil
}

// SettleableRun returns the player's newest run that can still settle:
// either active or already holding signed settlement terms.
func (store *Store) SettleableRun(ctx context.Context, playerAddress string) (*Run, error) {
	var run Run
	err := store.db.WithContext(ctx).
		Where("player_address = ? AND status in ?", playerAddress, []string{StatusActive, StatusAwaitingSettlement}).
		Order("created_at DESC").
		Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveRun
		}
		return nil, err
	}
	return &run, nil
}

// RunByID returns a run regardless of status.
func (store *Store) RunByID(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := store.db.WithContext(ctx).Where("run_id = ?", runID).Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// CreateRun abandons any previous active run for the player and starts a
// fresh one with the supplied state snapshot.
func (store *Store) CreateRun(ctx context.Context, playerAddress string, state []byte) (*Run, error) {
	run := &Run{
		PlayerAddress: playerAddress,
		Status:        StatusActive,
		State:         datatypes.JSON(state),
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	err := store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		if err := txStore.db.WithContext(ctx).
			Model(&Run{}).
			Where("player_address = ? AND status = ?", playerAddress, StatusActive).
			Update("status", StatusDead).Error; err != nil {
			return err
		}
		return txStore.db.WithContext(ctx).Create(run).Error
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// SaveState replaces a run's state snapshot.
func (store *Store) SaveState(ctx context.Context, runID string, state []byte, status string) error {
	result := store.db.WithContext(ctx).
		Model(&Run{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"state":      datatypes.JSON(state),
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// MarkAwaitingSettlement stores the signed settlement terms on the run and
// moves it out of the active state.
func (store *Store) MarkAwaitingSettlement(ctx context.Context, runID string, settlementID string, finalNetWorth int64, daysPlayed int64, signature string, iceAwarded int64, didWin bool, wonAtDay int) error {
	result := store.db.WithContext(ctx).
		Model(&Run{}).
		Where("run_id = ? AND status in ?", runID, []string{StatusActive, StatusAwaitingSettlement}).
		Updates(map[string]any{
			"status":          StatusAwaitingSettlement,
			"settlement_id":   settlementID,
			"final_net_worth": finalNetWorth,
			"days_played":     daysPlayed,
			"signature":       signature,
			"ice_awarded":     iceAwarded,
			"did_win":         didWin,
			"won_at_day":      wonAtDay,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SettleRun finalizes a run after the on-chain transaction confirmed and
// folds the outcome into the player aggregates. The run is addressed by the
// settlement identifier the client received, and a repeat acknowledgment is
// a no-op.
func (store *Store) SettleRun(ctx context.Context, settlementID string, txHash string) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		var run Run
		err := txStore.db.WithContext(ctx).
			Where("settlement_id = ?", settlementID).
			Take(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}
		if run.Status == StatusSettled {
			return nil
		}

		result := txStore.db.WithContext(ctx).
			Model(&Run{}).
			Where("run_id = ? AND status = ?", run.RunID, StatusAwaitingSettlement).
			Updates(map[string]any{
				"status":     StatusSettled,
				"tx_hash":    txHash,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRunNotFound
		}
		return txStore.recordOutcome(ctx, run.PlayerAddress, run.IceAwarded, run.FinalNetWorth)
	})
}

// recordOutcome upserts the player row and folds a settled run's outcome in.
func (store *Store) recordOutcome(ctx context.Context, playerAddress string, iceAwarded int64, finalNetWorth int64) error {
	var player Player
	err := store.db.WithContext(ctx).
		Where("player_address = ?", playerAddress).
		Take(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		player = Player{
			PlayerAddress: playerAddress,
			CreatedAt:     time.Now().UTC(),
		}
		if err := store.db.WithContext(ctx).Create(&player).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	updates := map[string]any{
		"total_ice":    gorm.Expr("total_ice + ?", iceAwarded),
		"runs_settled": gorm.Expr("runs_settled + 1"),
		"updated_at":   time.Now().UTC(),
	}
	if finalNetWorth > player.BestNetWorth {
		updates["best_net_worth"] = finalNetWorth
	}
	return store.db.WithContext(ctx).
		Model(&Player{}).
		Where("player_address = ?", playerAddress).
		Updates(updates).Error
}

// TotalIce returns the player's lifetime ICE balance.
func (store *Store) TotalIce(ctx context.Context, playerAddress string) (int64, error) {
	var player Player
	err := store.db.WithContext(ctx).
		Where("player_address = ?", playerAddress).
		Take(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return player.TotalIce, nil
}

// Leaderboard returns player aggregates ordered by the requested column.
func (store *Store) Leaderboard(ctx context.Context, orderByIce bool, limit int) ([]Player, error) {
	order := "best_net_worth DESC"
	if orderByIce {
		order = "total_ice DESC"
	}
	var players []Player
	err := store.db.WithContext(ctx).
		Order(order).
		Limit(limit).
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}
