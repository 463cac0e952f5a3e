package devserver

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/dopewars-xyz/gameclient/pkg/game"
)

func newTestEngine() *engine {
	return newEngine(rand.New(rand.NewSource(1)))
}

func TestNewRunOpeningState(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(4)

	if state.Cash != startingCash || state.Debt != startingDebt {
		test.Fatalf("unexpected opening money: cash=%d debt=%d", state.Cash, state.Debt)
	}
	if state.TrenchcoatCapacity != startingCapacity || state.Health != startingHealth {
		test.Fatalf("unexpected opening stats: %+v", state)
	}
	if state.DaysPlayed != 1 || state.NetWorthGoal != netWorthGoal || state.TotalIce != 4 {
		test.Fatalf("unexpected opening meta: %+v", state)
	}
	for index := 0; index < game.GoodCount; index++ {
		low, high := priceRanges[index][0], priceRanges[index][1]
		if state.Prices[index] < low || state.Prices[index] > high {
			test.Fatalf("price %d out of range: %d", index, state.Prices[index])
		}
	}
	if state.CurrentNetWorth != startingCash-startingDebt {
		test.Fatalf("unexpected opening net worth: %d", state.CurrentNetWorth)
	}
}

func TestBuySellRoundTrip(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)

	if _, _, err := eng.apply(&state, game.ActionBuy, actionParams{GoodIndex: 0, Amount: 5}); err != nil {
		test.Fatalf("buy failed: %v", err)
	}
	if state.Inventory[0] != 5 {
		test.Fatalf("expected 5 units, got %d", state.Inventory[0])
	}
	if _, _, err := eng.apply(&state, game.ActionSell, actionParams{GoodIndex: 0, Amount: 5}); err != nil {
		test.Fatalf("sell failed: %v", err)
	}
	if state.Cash != startingCash || state.Inventory[0] != 0 {
		test.Fatalf("round trip at one price must restore cash: %+v", state)
	}
}

func TestBuyRejections(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)
	state.Prices[0] = 100

	if _, _, err := eng.apply(&state, game.ActionBuy, actionParams{GoodIndex: 0, Amount: 1000}); !errors.Is(err, errNotEnoughCash) {
		test.Fatalf("expected errNotEnoughCash, got %v", err)
	}
	state.Cash = 1000000
	if _, _, err := eng.apply(&state, game.ActionBuy, actionParams{GoodIndex: 0, Amount: startingCapacity + 1}); !errors.Is(err, errNotEnoughSpace) {
		test.Fatalf("expected errNotEnoughSpace, got %v", err)
	}
	if _, _, err := eng.apply(&state, game.ActionSell, actionParams{GoodIndex: 1, Amount: 1}); !errors.Is(err, errNotEnoughUnits) {
		test.Fatalf("expected errNotEnoughUnits, got %v", err)
	}
}

func TestHustleRequiresEmptyPocket(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)
	state.Inventory[2] = 1

	if _, _, err := eng.apply(&state, game.ActionHustle, actionParams{}); !errors.Is(err, errPocketNotEmpty) {
		test.Fatalf("expected errPocketNotEmpty, got %v", err)
	}

	state.Inventory[2] = 0
	before := state.Cash
	if _, _, err := eng.apply(&state, game.ActionHustle, actionParams{}); err != nil {
		test.Fatalf("hustle failed: %v", err)
	}
	if state.Cash <= before {
		test.Fatalf("hustle must earn cash: before=%d after=%d", before, state.Cash)
	}
}

func TestEndDayAppliesInterest(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)

	if _, _, err := eng.apply(&state, game.ActionEndDay, actionParams{}); err != nil {
		test.Fatalf("end day failed: %v", err)
	}
	if state.DaysPlayed != 2 {
		test.Fatalf("expected day 2, got %d", state.DaysPlayed)
	}
	wantDebt := startingDebt + startingDebt*dailyInterestPercent/100
	if state.Debt != int64(wantDebt) {
		test.Fatalf("expected debt %d, got %d", wantDebt, state.Debt)
	}
}

func TestTravelRejectsSameLocation(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)

	if _, _, err := eng.apply(&state, game.ActionTravelTo, actionParams{Location: state.Location}); !errors.Is(err, errSameLocation) {
		test.Fatalf("expected errSameLocation, got %v", err)
	}
	if _, _, err := eng.apply(&state, game.ActionTravelTo, actionParams{Location: 3}); err != nil {
		test.Fatalf("travel failed: %v", err)
	}
	if state.Location != 3 || state.DaysPlayed != 2 {
		test.Fatalf("travel must move and end the day: %+v", state)
	}
}

func TestDayLimitForcesSettlement(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)
	state.DaysPlayed = game.DayLimit

	_, mustSettle, err := eng.apply(&state, game.ActionEndDay, actionParams{})
	if err != nil || !mustSettle {
		test.Fatalf("expected must-settle at the day limit, got mustSettle=%v err=%v", mustSettle, err)
	}

	// Non-day actions still work on the final day.
	if _, mustSettle, err := eng.apply(&state, game.ActionDepositBank, actionParams{Amount: 100}); err != nil || mustSettle {
		test.Fatalf("deposit on the final day: mustSettle=%v err=%v", mustSettle, err)
	}
}

func TestClaimDailyIceOncePerDay(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(3)

	if _, _, err := eng.apply(&state, game.ActionClaimDailyIce, actionParams{}); err != nil {
		test.Fatalf("claim failed: %v", err)
	}
	if state.TotalIce != 4 {
		test.Fatalf("expected total ice 4, got %d", state.TotalIce)
	}
	if _, _, err := eng.apply(&state, game.ActionClaimDailyIce, actionParams{}); !errors.Is(err, errIceAlreadyClaimed) {
		test.Fatalf("expected errIceAlreadyClaimed, got %v", err)
	}
}

func TestBankAndLoanFlow(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)

	if _, _, err := eng.apply(&state, game.ActionDepositBank, actionParams{Amount: 1500}); err != nil {
		test.Fatalf("deposit failed: %v", err)
	}
	if state.Cash != 500 || state.BankBalance != 1500 {
		test.Fatalf("unexpected balances after deposit: %+v", state)
	}
	if _, _, err := eng.apply(&state, game.ActionWithdrawBank, actionParams{Amount: 2000}); !errors.Is(err, errNotEnoughBank) {
		test.Fatalf("expected errNotEnoughBank, got %v", err)
	}
	if _, _, err := eng.apply(&state, game.ActionWithdrawBank, actionParams{Amount: 1500}); err != nil {
		test.Fatalf("withdraw failed: %v", err)
	}

	state.Debt = 300
	if _, _, err := eng.apply(&state, game.ActionPayLoan, actionParams{Amount: 1000}); err != nil {
		test.Fatalf("pay loan failed: %v", err)
	}
	if state.Debt != 0 {
		test.Fatalf("overpayment must clamp to the debt, got %d", state.Debt)
	}
	if state.Cash != 2000-300 {
		test.Fatalf("only the clamped amount leaves cash, got %d", state.Cash)
	}
}

func TestCoatOfferLifecycle(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)

	if _, _, err := eng.apply(&state, game.ActionAcceptCoatOffer, actionParams{}); !errors.Is(err, errNoCoatOffer) {
		test.Fatalf("expected errNoCoatOffer, got %v", err)
	}

	state.CoatOfferPending = true
	if _, _, err := eng.apply(&state, game.ActionAcceptCoatOffer, actionParams{}); !errors.Is(err, errNotEnoughCash) {
		test.Fatalf("expected errNotEnoughCash, got %v", err)
	}

	state.Cash = coatUpgradeCost
	if _, _, err := eng.apply(&state, game.ActionAcceptCoatOffer, actionParams{}); err != nil {
		test.Fatalf("accept failed: %v", err)
	}
	if state.TrenchcoatCapacity != startingCapacity+coatUpgradeBonus || state.CoatOfferPending {
		test.Fatalf("unexpected coat state: %+v", state)
	}

	state.CoatOfferPending = true
	if _, _, err := eng.apply(&state, game.ActionDeclineCoatOffer, actionParams{}); err != nil {
		test.Fatalf("decline failed: %v", err)
	}
	if state.CoatOfferPending {
		test.Fatal("decline must clear the offer")
	}
}

func TestCopEncounterBlocksOtherActions(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)
	state.CopEncounterPending = true

	if _, _, err := eng.apply(&state, game.ActionEndDay, actionParams{}); !errors.Is(err, errCopBlocksAction) {
		test.Fatalf("expected errCopBlocksAction, got %v", err)
	}
	if _, _, err := eng.apply(&state, game.ActionRunFromCop, actionParams{}); err != nil {
		test.Fatalf("run from cop failed: %v", err)
	}
	if state.CopEncounterPending {
		test.Fatal("encounter must resolve")
	}
}

func TestDeadPlayerCannotAct(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)
	state.Health = 0

	if _, _, err := eng.apply(&state, game.ActionEndDay, actionParams{}); !errors.Is(err, errDead) {
		test.Fatalf("expected errDead, got %v", err)
	}
}

func TestWinDetection(test *testing.T) {
	eng := newTestEngine()
	state := eng.newRun(0)
	state.Cash = netWorthGoal + startingDebt

	description, _, err := eng.apply(&state, game.ActionDepositBank, actionParams{Amount: 1})
	if err != nil {
		test.Fatalf("deposit failed: %v", err)
	}
	if state.WonAtDay != state.DaysPlayed {
		test.Fatalf("expected win at day %d, got %d", state.DaysPlayed, state.WonAtDay)
	}
	if description == "" {
		test.Fatal("expected a win announcement")
	}
}

func TestSettlementTerms(test *testing.T) {
	eng := newTestEngine()

	won := eng.newRun(0)
	won.WonAtDay = 12
	won.Cash = 50000
	won.refreshNetWorth()
	netWorth, ice, didWin := won.settlementTerms()
	if !didWin || ice != iceAwardWin {
		test.Fatalf("expected winning terms, got ice=%d didWin=%v", ice, didWin)
	}
	if netWorth != won.CurrentNetWorth {
		test.Fatalf("unexpected net worth: %d", netWorth)
	}

	lost := eng.newRun(0)
	lost.Cash = 0
	lost.refreshNetWorth()
	netWorth, ice, didWin = lost.settlementTerms()
	if didWin || ice != iceAwardConsolation {
		test.Fatalf("expected consolation terms, got ice=%d didWin=%v", ice, didWin)
	}
	if netWorth != 0 {
		test.Fatalf("negative net worth must clamp to zero, got %d", netWorth)
	}
}
