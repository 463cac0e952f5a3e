package game

import (
	"context"
	"fmt"
	"time"
)

// Buy purchases units of a good with an optimistic local mutation: cash and
// inventory are adjusted synchronously and the backend call proceeds in the
// background. Preconditions (cash, coat capacity) are checked locally before
// any mutation or network call.
//
// The affected good index and the cash field stay marked pending until the
// reconciling refresh runs; the refresh replaces the snapshot wholesale, so
// no optimistic delta can survive reconciliation.
func (session *Session) Buy(ctx context.Context, goodIndex int, amount int64) error {
	if err := validGoodIndex(goodIndex); err != nil {
		session.showError(err.Error(), string(ActionBuy))
		return WrapError(operationTrade, codeValidation, err)
	}
	if err := validTradeAmount(amount); err != nil {
		session.showError(err.Error(), string(ActionBuy))
		return WrapError(operationTrade, codeValidation, err)
	}

	session.mu.Lock()
	wallet, err := session.requireActiveLocked()
	if err != nil {
		session.showErrorLocked("Session not active", string(ActionBuy))
		session.mu.Unlock()
		return WrapError(operationTrade, codeSessionInactive, err)
	}
	price := session.state.Prices[goodIndex]
	cost := price * amount
	if cost > session.state.Player.Cash {
		session.showErrorLocked("Not enough cash", string(ActionBuy))
		session.mu.Unlock()
		return WrapError(operationTrade, codePrecondition, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCash, cost, session.state.Player.Cash))
	}
	if session.totalUnitsLocked()+amount > session.state.Player.TrenchcoatCapacity {
		session.showErrorLocked("Not enough coat space", string(ActionBuy))
		session.mu.Unlock()
		return WrapError(operationTrade, codePrecondition, fmt.Errorf("%w: capacity %d", ErrInsufficientCapacity, session.state.Player.TrenchcoatCapacity))
	}
	session.state.Player.Cash -= cost
	session.state.Inventory[goodIndex] += amount
	session.markTradePendingLocked(goodIndex)
	session.mu.Unlock()

	session.dispatchTrade(wallet.Address(), ActionBuy, goodIndex, amount)
	return nil
}

// Sell sells held units of a good with the same optimistic protocol as Buy.
func (session *Session) Sell(ctx context.Context, goodIndex int, amount int64) error {
	if err := validGoodIndex(goodIndex); err != nil {
		session.showError(err.Error(), string(ActionSell))
		return WrapError(operationTrade, codeValidation, err)
	}
	if err := validTradeAmount(amount); err != nil {
		session.showError(err.Error(), string(ActionSell))
		return WrapError(operationTrade, codeValidation, err)
	}

	session.mu.Lock()
	wallet, err := session.requireActiveLocked()
	if err != nil {
		session.showErrorLocked("Session not active", string(ActionSell))
		session.mu.Unlock()
		return WrapError(operationTrade, codeSessionInactive, err)
	}
	if amount > session.state.Inventory[goodIndex] {
		session.showErrorLocked("Not enough units to sell", string(ActionSell))
		session.mu.Unlock()
		return WrapError(operationTrade, codePrecondition, fmt.Errorf("%w: hold %d", ErrInsufficientInventory, session.state.Inventory[goodIndex]))
	}
	session.state.Player.Cash += session.state.Prices[goodIndex] * amount
	session.state.Inventory[goodIndex] -= amount
	session.markTradePendingLocked(goodIndex)
	session.mu.Unlock()

	session.dispatchTrade(wallet.Address(), ActionSell, goodIndex, amount)
	return nil
}

// dispatchTrade runs the background half of an optimistic trade: submit the
// action, roll back via an immediate refresh on failure, and always finish
// with a reconciling refresh after the pending window.
func (session *Session) dispatchTrade(player WalletAddress, action ActionName, goodIndex int, amount int64) {
	session.trades.Add(1)
	go func() {
		defer session.trades.Done()
		ctx := context.Background()

		result, err := session.backend.SubmitAction(ctx, player, action, ActionParams{GoodIndex: goodIndex, Amount: amount})
		if err != nil {
			session.showError(err.Error(), string(action))
			_ = session.RefreshGameState(ctx)
		} else if result.MustSettle {
			session.showError(messageDayLimit, string(action))
		}
		session.logOperation(ctx, OperationLog{Operation: operationTrade, Player: player, Action: action, Error: err})

		if session.reconcileDelay > 0 {
			time.Sleep(session.reconcileDelay)
		}
		session.mu.Lock()
		session.clearTradePendingLocked(goodIndex)
		session.mu.Unlock()
		_ = session.RefreshGameState(ctx)
	}()
}

func (session *Session) markTradePendingLocked(goodIndex int) {
	session.pendingCash++
	session.pendingGoods[goodIndex]++
}

func (session *Session) clearTradePendingLocked(goodIndex int) {
	if session.pendingCash > 0 {
		session.pendingCash--
	}
	if session.pendingGoods[goodIndex] > 0 {
		session.pendingGoods[goodIndex]--
	}
}

func (session *Session) totalUnitsLocked() int64 {
	var total int64
	for index := 0; index < GoodCount; index++ {
		total += session.state.Inventory[index]
	}
	return total
}

// MaxBuy returns the largest amount of a good the player can buy right now,
// bounded by cash and remaining coat space.
func (session *Session) MaxBuy(goodIndex int) int64 {
	if validGoodIndex(goodIndex) != nil {
		return 0
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.hasState {
		return 0
	}
	price := session.state.Prices[goodIndex]
	if price <= 0 {
		return 0
	}
	byCash := session.state.Player.Cash / price
	bySpace := session.state.Player.TrenchcoatCapacity - session.totalUnitsLocked()
	if bySpace < byCash {
		byCash = bySpace
	}
	if byCash < 0 {
		return 0
	}
	return byCash
}

// MaxSell returns the held units of a good.
func (session *Session) MaxSell(goodIndex int) int64 {
	if validGoodIndex(goodIndex) != nil {
		return 0
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.hasState {
		return 0
	}
	return session.state.Inventory[goodIndex]
}
