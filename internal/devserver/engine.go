package devserver

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/dopewars-xyz/gameclient/pkg/game"
)

// Starting conditions and rule constants for a run.
const (
	startingCash     = 2000
	startingDebt     = 5500
	startingCapacity = 100
	startingHealth   = 100
	netWorthGoal     = 1000000

	dailyInterestPercent = 10
	gunCost              = 3000
	coatUpgradeCost      = 5000
	coatUpgradeBonus     = 50
	copDamage            = 30
	gunWinPercent        = 70
	bareWinPercent       = 30

	iceAwardWin         = 10
	iceAwardConsolation = 1
)

// Engine rule errors reported to the player.
var (
	errDead              = errors.New("you are dead")
	errUnknownAction     = errors.New("unknown action")
	errNotEnoughCash     = errors.New("not enough cash")
	errNotEnoughSpace    = errors.New("not enough coat space")
	errNotEnoughUnits    = errors.New("not enough units")
	errNotEnoughBank     = errors.New("not enough in the bank")
	errPocketNotEmpty    = errors.New("cannot hustle while holding goods")
	errAlreadyArmed      = errors.New("you already own a gun")
	errNoCoatOffer       = errors.New("no coat offer pending")
	errNoCopEncounter    = errors.New("no cop encounter pending")
	errCopBlocksAction   = errors.New("deal with the cop first")
	errIceAlreadyClaimed = errors.New("daily ICE already claimed")
	errSameLocation      = errors.New("you are already there")
	errSettleTooEarly    = fmt.Errorf("cannot settle before day %d", game.SettlementFloorDay)
)

// priceRanges bounds the daily market roll per good, indexed like
// game.GoodNames.
var priceRanges = [game.GoodCount][2]int64{
	{30, 150},
	{150, 600},
	{1000, 3500},
	{500, 1500},
}

// runState is the full engine snapshot persisted per run. Field names match
// the wire payload the client decodes.
type runState struct {
	Cash                 int64                 `json:"cash"`
	Debt                 int64                 `json:"debt"`
	BankBalance          int64                 `json:"bankBalance"`
	TrenchcoatCapacity   int64                 `json:"trenchcoatCapacity"`
	Health               int64                 `json:"health"`
	HasGun               bool                  `json:"hasGun"`
	Location             int                   `json:"location"`
	DaysPlayed           int                   `json:"daysPlayed"`
	LastEventDescription string                `json:"lastEventDescription"`
	NetWorthGoal         int64                 `json:"netWorthGoal"`
	CurrentNetWorth      int64                 `json:"currentNetWorth"`
	CoatOfferPending     bool                  `json:"coatOfferPending"`
	CopEncounterPending  bool                  `json:"copEncounterPending"`
	WonAtDay             int                   `json:"wonAtDay"`
	Inventory            [game.GoodCount]int64 `json:"inventory"`
	Prices               [game.GoodCount]int64 `json:"prices"`
	TotalIce             int64                 `json:"totalIce"`
	IceClaimedDay        int                   `json:"iceClaimedDay"`
}

// engine applies game rules to run states. All randomness flows through the
// injected source so tests can pin outcomes.
type engine struct {
	rng *rand.Rand
}

func newEngine(rng *rand.Rand) *engine {
	return &engine{rng: rng}
}

// newRun rolls the opening state of a run.
func (eng *engine) newRun(totalIce int64) runState {
	state := runState{
		Cash:               startingCash,
		Debt:               startingDebt,
		TrenchcoatCapacity: startingCapacity,
		Health:             startingHealth,
		DaysPlayed:         1,
		NetWorthGoal:       netWorthGoal,
		TotalIce:           totalIce,
		LastEventDescription: "You hit the streets of Staten Island with borrowed cash " +
			"and a cheap trenchcoat.",
	}
	state.Prices = eng.rollPrices()
	state.refreshNetWorth()
	return state
}

// apply mutates state according to one action. The returned description is
// shown to the player; mustSettle reports that the day limit blocked the
// action.
func (eng *engine) apply(state *runState, action game.ActionName, params actionParams) (description string, mustSettle bool, err error) {
	if state.Health <= 0 {
		return "", false, errDead
	}
	if state.DaysPlayed >= game.DayLimit && isDayConsuming(action) {
		return "", true, nil
	}
	if state.CopEncounterPending && action != game.ActionFightCop && action != game.ActionRunFromCop {
		return "", false, errCopBlocksAction
	}

	switch action {
	case game.ActionEndDay:
		description = eng.advanceDay(state, state.Location)
	case game.ActionTravelTo:
		if err := validLocationIndex(params.Location); err != nil {
			return "", false, err
		}
		if params.Location == state.Location {
			return "", false, errSameLocation
		}
		description = eng.advanceDay(state, params.Location)
	case game.ActionBuy:
		description, err = eng.buy(state, params.GoodIndex, params.Amount)
	case game.ActionSell:
		description, err = eng.sell(state, params.GoodIndex, params.Amount)
	case game.ActionHustle:
		description, err = eng.hustle(state)
	case game.ActionStash:
		description = eng.findStash(state)
	case game.ActionClaimDailyIce:
		description, err = eng.claimDailyIce(state)
	case game.ActionDepositBank:
		description, err = eng.depositBank(state, params.Amount)
	case game.ActionWithdrawBank:
		description, err = eng.withdrawBank(state, params.Amount)
	case game.ActionPayLoan:
		description, err = eng.payLoan(state, params.Amount)
	case game.ActionAcceptCoatOffer:
		description, err = eng.acceptCoatOffer(state)
	case game.ActionDeclineCoatOffer:
		description, err = eng.declineCoatOffer(state)
	case game.ActionBuyGun:
		description, err = eng.buyGun(state)
	case game.ActionFightCop:
		description, err = eng.fightCop(state)
	case game.ActionRunFromCop:
		description, err = eng.runFromCop(state)
	default:
		return "", false, fmt.Errorf("%w: %s", errUnknownAction, action)
	}
	if err != nil {
		return "", false, err
	}

	state.LastEventDescription = description
	state.refreshNetWorth()
	if state.WonAtDay == 0 && state.CurrentNetWorth >= state.NetWorthGoal {
		state.WonAtDay = state.DaysPlayed
		description += " You hit your net worth goal!"
		state.LastEventDescription = description
	}
	return description, false, nil
}

// isDayConsuming reports whether an action advances the day and is therefore
// blocked once the day limit is reached.
func isDayConsuming(action game.ActionName) bool {
	return action == game.ActionEndDay || action == game.ActionTravelTo
}

// advanceDay applies interest, moves the player, rerolls the market, and may
// spawn a random encounter.
func (eng *engine) advanceDay(state *runState, location int) string {
	state.DaysPlayed++
	state.Debt += state.Debt * dailyInterestPercent / 100
	state.Location = location
	state.Prices = eng.rollPrices()
	state.CoatOfferPending = false

	description := fmt.Sprintf("Day %d in %s.", state.DaysPlayed, game.LocationNames[location])
	switch roll := eng.rng.Intn(100); {
	case roll < 15:
		state.CopEncounterPending = true
		description += " A cop spots you and moves in!"
	case roll < 30 && state.TrenchcoatCapacity == startingCapacity:
		state.CoatOfferPending = true
		description += fmt.Sprintf(" A tailor offers a bigger trenchcoat for $%d.", coatUpgradeCost)
	case roll < 40:
		spiked := eng.rng.Intn(game.GoodCount)
		state.Prices[spiked] *= 3
		description += fmt.Sprintf(" Cops busted a %s shipment, prices are insane!", game.GoodNames[spiked])
	}
	return description
}

func (eng *engine) rollPrices() [game.GoodCount]int64 {
	var prices [game.GoodCount]int64
	for index := 0; index < game.GoodCount; index++ {
		low, high := priceRanges[index][0], priceRanges[index][1]
		prices[index] = low + eng.rng.Int63n(high-low+1)
	}
	return prices
}

func (eng *engine) buy(state *runState, goodIndex int, amount int64) (string, error) {
	if err := validGoodIndexAmount(goodIndex, amount); err != nil {
		return "", err
	}
	cost := state.Prices[goodIndex] * amount
	if cost > state.Cash {
		return "", errNotEnoughCash
	}
	if state.totalUnits()+amount > state.TrenchcoatCapacity {
		return "", errNotEnoughSpace
	}
	state.Cash -= cost
	state.Inventory[goodIndex] += amount
	return fmt.Sprintf("Bought %d %s for $%d.", amount, game.GoodNames[goodIndex], cost), nil
}

func (eng *engine) sell(state *runState, goodIndex int, amount int64) (string, error) {
	if err := validGoodIndexAmount(goodIndex, amount); err != nil {
		return "", err
	}
	if amount > state.Inventory[goodIndex] {
		return "", errNotEnoughUnits
	}
	proceeds := state.Prices[goodIndex] * amount
	state.Cash += proceeds
	state.Inventory[goodIndex] -= amount
	return fmt.Sprintf("Sold %d %s for $%d.", amount, game.GoodNames[goodIndex], proceeds), nil
}

func (eng *engine) hustle(state *runState) (string, error) {
	if state.totalUnits() > 0 {
		return "", errPocketNotEmpty
	}
	earned := int64(100 + eng.rng.Intn(401))
	state.Cash += earned
	return fmt.Sprintf("You hustled on the corner and made $%d.", earned), nil
}

func (eng *engine) findStash(state *runState) string {
	switch roll := eng.rng.Intn(100); {
	case roll < 30:
		found := int64(200 + eng.rng.Intn(801))
		state.Cash += found
		return fmt.Sprintf("You found a stash with $%d inside!", found)
	case roll < 40:
		state.Health -= copDamage
		if state.Health <= 0 {
			state.Health = 0
			return "You dug around a rival crew's stash spot and died."
		}
		return "A rival crew caught you digging around. You took a beating."
	default:
		return "You dug around but found nothing."
	}
}

func (eng *engine) claimDailyIce(state *runState) (string, error) {
	if state.IceClaimedDay == state.DaysPlayed {
		return "", errIceAlreadyClaimed
	}
	state.IceClaimedDay = state.DaysPlayed
	state.TotalIce++
	return "Daily ICE claimed.", nil
}

func (eng *engine) depositBank(state *runState, amount int64) (string, error) {
	if amount <= 0 {
		return "", game.ErrInvalidAmount
	}
	if amount > state.Cash {
		return "", errNotEnoughCash
	}
	state.Cash -= amount
	state.BankBalance += amount
	return fmt.Sprintf("Deposited $%d.", amount), nil
}

func (eng *engine) withdrawBank(state *runState, amount int64) (string, error) {
	if amount <= 0 {
		return "", game.ErrInvalidAmount
	}
	if amount > state.BankBalance {
		return "", errNotEnoughBank
	}
	state.BankBalance -= amount
	state.Cash += amount
	return fmt.Sprintf("Withdrew $%d.", amount), nil
}

func (eng *engine) payLoan(state *runState, amount int64) (string, error) {
	if amount <= 0 {
		return "", game.ErrInvalidAmount
	}
	if amount > state.Cash {
		return "", errNotEnoughCash
	}
	if amount > state.Debt {
		amount = state.Debt
	}
	state.Cash -= amount
	state.Debt -= amount
	if state.Debt == 0 {
		return "You paid off the loan shark. He looks disappointed.", nil
	}
	return fmt.Sprintf("Paid $%d toward your debt.", amount), nil
}

func (eng *engine) acceptCoatOffer(state *runState) (string, error) {
	if !state.CoatOfferPending {
		return "", errNoCoatOffer
	}
	if state.Cash < coatUpgradeCost {
		return "", errNotEnoughCash
	}
	state.Cash -= coatUpgradeCost
	state.TrenchcoatCapacity += coatUpgradeBonus
	state.CoatOfferPending = false
	return fmt.Sprintf("New trenchcoat! You can now carry %d units.", state.TrenchcoatCapacity), nil
}

func (eng *engine) declineCoatOffer(state *runState) (string, error) {
	if !state.CoatOfferPending {
		return "", errNoCoatOffer
	}
	state.CoatOfferPending = false
	return "You wave the tailor off.", nil
}

func (eng *engine) buyGun(state *runState) (string, error) {
	if state.HasGun {
		return "", errAlreadyArmed
	}
	if state.Cash < gunCost {
		return "", errNotEnoughCash
	}
	state.Cash -= gunCost
	state.HasGun = true
	return "You bought a gun. Cops will think twice now.", nil
}

func (eng *engine) fightCop(state *runState) (string, error) {
	if !state.CopEncounterPending {
		return "", errNoCopEncounter
	}
	state.CopEncounterPending = false
	winPercent := bareWinPercent
	if state.HasGun {
		winPercent = gunWinPercent
	}
	if eng.rng.Intn(100) < winPercent {
		return "You fought off the cop and slipped into an alley.", nil
	}
	state.Health -= copDamage
	if state.Health <= 0 {
		state.Health = 0
		return "The cop shot you. You died in the street.", nil
	}
	confiscated := state.confiscate()
	if confiscated > 0 {
		return fmt.Sprintf("The cop beat you down and confiscated %d units.", confiscated), nil
	}
	return "The cop beat you down. You got away with your stash intact.", nil
}

func (eng *engine) runFromCop(state *runState) (string, error) {
	if !state.CopEncounterPending {
		return "", errNoCopEncounter
	}
	state.CopEncounterPending = false
	if eng.rng.Intn(100) < 60 {
		return "You outran the cop through the back streets.", nil
	}
	state.Health -= copDamage / 2
	if state.Health <= 0 {
		state.Health = 0
		return "You tripped running from the cop and died in custody.", nil
	}
	confiscated := state.confiscate()
	return fmt.Sprintf("The cop caught you and confiscated %d units.", confiscated), nil
}

// confiscate seizes the whole inventory and reports the unit count.
func (state *runState) confiscate() int64 {
	var seized int64
	for index := range state.Inventory {
		seized += state.Inventory[index]
		state.Inventory[index] = 0
	}
	return seized
}

func (state *runState) totalUnits() int64 {
	var total int64
	for _, held := range state.Inventory {
		total += held
	}
	return total
}

func (state *runState) refreshNetWorth() {
	total := state.Cash + state.BankBalance - state.Debt
	for index := 0; index < game.GoodCount; index++ {
		total += state.Inventory[index] * state.Prices[index]
	}
	state.CurrentNetWorth = total
}

// settlementTerms derives the packet values for closing a run.
func (state *runState) settlementTerms() (finalNetWorth int64, iceAwarded int64, didWin bool) {
	finalNetWorth = state.CurrentNetWorth
	if finalNetWorth < 0 {
		finalNetWorth = 0
	}
	didWin = state.WonAtDay > 0
	if didWin {
		return finalNetWorth, iceAwardWin, true
	}
	return finalNetWorth, iceAwardConsolation, false
}

func validGoodIndexAmount(goodIndex int, amount int64) error {
	if goodIndex < 0 || goodIndex >= game.GoodCount {
		return game.ErrInvalidGoodIndex
	}
	if amount <= 0 {
		return game.ErrInvalidAmount
	}
	return nil
}

func validLocationIndex(location int) error {
	if location < 0 || location >= game.LocationCount {
		return game.ErrInvalidLocation
	}
	return nil
}
