package game

import (
	"context"
	"time"
)

// SendAction dispatches a blocking, turn-consuming action and applies the
// returned state. Only one blocking action may be in flight per session; a
// second call fails with ErrActionInFlight before any network traffic.
//
// A "must settle" response is a business-rule boundary, not a failure: the
// day-limit message is surfaced, state is force-refreshed, and ErrMustSettle
// is returned so callers can branch into settlement.
//
// Returns the server-supplied event description so callers can react to
// specific outcomes, death detection included.
func (session *Session) SendAction(ctx context.Context, action ActionName, params ActionParams) (string, error) {
	session.mu.Lock()
	wallet, err := session.requireActiveLocked()
	if err != nil {
		session.showErrorLocked("Session not active", string(action))
		session.mu.Unlock()
		return "", WrapError(operationDispatch, codeSessionInactive, err)
	}
	if session.blockingInFlight {
		session.mu.Unlock()
		return "", WrapError(operationDispatch, codeInFlight, ErrActionInFlight)
	}
	session.blockingInFlight = true
	session.loading = true
	session.actionLabel = actionLabels[action]
	session.mu.Unlock()

	defer func() {
		session.mu.Lock()
		session.blockingInFlight = false
		session.loading = false
		session.actionLabel = ""
		session.mu.Unlock()
		session.scheduleTrailingRefresh()
	}()

	result, err := session.backend.SubmitAction(ctx, wallet.Address(), action, params)
	if err != nil {
		session.showError(err.Error(), string(action))
		session.logOperation(ctx, OperationLog{Operation: operationDispatch, Player: wallet.Address(), Action: action, Error: err})
		return "", WrapError(operationDispatch, codeBackend, err)
	}

	if result.MustSettle {
		session.showError(messageDayLimit, string(action))
		_ = session.RefreshGameState(ctx)
		session.logOperation(ctx, OperationLog{Operation: operationDispatch, Player: wallet.Address(), Action: action, Detail: "must_settle"})
		return "", WrapError(operationDispatch, codeMustSettle, ErrMustSettle)
	}

	if result.State != nil {
		session.mu.Lock()
		session.applyStateLocked(*result.State)
		session.mu.Unlock()
	} else if err := session.RefreshGameState(ctx); err != nil {
		return result.EventDescription, err
	}

	session.logOperation(ctx, OperationLog{Operation: operationDispatch, Player: wallet.Address(), Action: action, Detail: result.EventDescription})
	return result.EventDescription, nil
}

// scheduleTrailingRefresh guards against a state payload drift bug in the
// backend by re-fetching a couple of seconds after an action completes.
func (session *Session) scheduleTrailingRefresh() {
	if session.trailingRefreshDelay <= 0 {
		return
	}
	time.AfterFunc(session.trailingRefreshDelay, func() {
		_ = session.RefreshGameState(context.Background())
	})
}

// EndDay advances the run to the next day.
func (session *Session) EndDay(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionEndDay, ActionParams{})
}

// TravelTo moves the player to another city. Travel ends the day.
func (session *Session) TravelTo(ctx context.Context, location int) (string, error) {
	if err := validLocation(location); err != nil {
		session.showError(err.Error(), string(ActionTravelTo))
		return "", WrapError(operationDispatch, codeValidation, err)
	}
	return session.SendAction(ctx, ActionTravelTo, ActionParams{Location: location})
}

// Hustle works the street for cash. The backend requires an empty pocket.
func (session *Session) Hustle(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionHustle, ActionParams{})
}

// FindStash gambles on finding a hidden stash.
func (session *Session) FindStash(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionStash, ActionParams{})
}

// ClaimDailyIce claims the once-per-day ICE reward.
func (session *Session) ClaimDailyIce(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionClaimDailyIce, ActionParams{})
}

// DepositBank moves cash into the bank.
func (session *Session) DepositBank(ctx context.Context, amount int64) (string, error) {
	if err := validTradeAmount(amount); err != nil {
		session.showError(err.Error(), string(ActionDepositBank))
		return "", WrapError(operationDispatch, codeValidation, err)
	}
	return session.SendAction(ctx, ActionDepositBank, ActionParams{Amount: amount})
}

// WithdrawBank moves bank balance back to cash.
func (session *Session) WithdrawBank(ctx context.Context, amount int64) (string, error) {
	if err := validTradeAmount(amount); err != nil {
		session.showError(err.Error(), string(ActionWithdrawBank))
		return "", WrapError(operationDispatch, codeValidation, err)
	}
	return session.SendAction(ctx, ActionWithdrawBank, ActionParams{Amount: amount})
}

// PayLoan pays down the loan shark debt.
func (session *Session) PayLoan(ctx context.Context, amount int64) (string, error) {
	if err := validTradeAmount(amount); err != nil {
		session.showError(err.Error(), string(ActionPayLoan))
		return "", WrapError(operationDispatch, codeValidation, err)
	}
	return session.SendAction(ctx, ActionPayLoan, ActionParams{Amount: amount})
}

// AcceptCoatOffer accepts a pending trenchcoat upgrade offer.
func (session *Session) AcceptCoatOffer(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionAcceptCoatOffer, ActionParams{})
}

// DeclineCoatOffer declines a pending trenchcoat upgrade offer.
func (session *Session) DeclineCoatOffer(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionDeclineCoatOffer, ActionParams{})
}

// BuyGun buys the gun upgrade.
func (session *Session) BuyGun(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionBuyGun, ActionParams{})
}

// FightCop resolves a pending cop encounter by fighting.
func (session *Session) FightCop(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionFightCop, ActionParams{})
}

// RunFromCop resolves a pending cop encounter by running.
func (session *Session) RunFromCop(ctx context.Context) (string, error) {
	return session.SendAction(ctx, ActionRunFromCop, ActionParams{})
}
