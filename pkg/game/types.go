package game

import (
	"fmt"
	"strings"
)

// GoodCount is the number of tradable goods in a run.
const GoodCount = 4

// LocationCount is the number of cities a player can travel between.
const LocationCount = 7

// GoodNames lists the tradable goods, index-addressed. The index is the
// identity key used by buy/sell calls.
var GoodNames = [GoodCount]string{"Weed", "Acid", "Cocaine", "Heroin"}

// LocationNames lists the cities, index-addressed.
var LocationNames = [LocationCount]string{
	"Staten Island",
	"Bronx",
	"Queens",
	"Brooklyn",
	"Central Park",
	"Coney Island",
	"Manhattan",
}

const (
	// SettlementFloorDay is the earliest day a run may settle voluntarily.
	SettlementFloorDay = 5
	// DayLimit is the day at which the backend forces settlement.
	DayLimit = 30
)

// WalletAddress is a normalized 0x-prefixed account address.
type WalletAddress struct {
	value string
}

// NewWalletAddress validates and normalizes a wallet address.
func NewWalletAddress(raw string) (WalletAddress, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 42 || !strings.HasPrefix(trimmed, "0x") {
		return WalletAddress{}, fmt.Errorf("%w: %q", ErrInvalidWalletAddress, raw)
	}
	for _, character := range trimmed[2:] {
		isDigit := character >= '0' && character <= '9'
		isLowerHex := character >= 'a' && character <= 'f'
		isUpperHex := character >= 'A' && character <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return WalletAddress{}, fmt.Errorf("%w: %q", ErrInvalidWalletAddress, raw)
		}
	}
	return WalletAddress{value: strings.ToLower(trimmed)}, nil
}

// String returns the normalized address.
func (address WalletAddress) String() string {
	return address.value
}

// IsZero reports whether the address is unset.
func (address WalletAddress) IsZero() bool {
	return address.value == ""
}

// TxHash identifies a submitted chain transaction.
type TxHash string

// String returns the hash as submitted.
func (hash TxHash) String() string {
	return string(hash)
}

// ActionName identifies a backend game action.
type ActionName string

const (
	ActionEndDay           ActionName = "endDay"
	ActionBuy              ActionName = "buy"
	ActionSell             ActionName = "sell"
	ActionHustle           ActionName = "hustle"
	ActionStash            ActionName = "stash"
	ActionClaimDailyIce    ActionName = "claimDailyIce"
	ActionTravelTo         ActionName = "travelTo"
	ActionDepositBank      ActionName = "depositBank"
	ActionWithdrawBank     ActionName = "withdrawBank"
	ActionPayLoan          ActionName = "payLoan"
	ActionAcceptCoatOffer  ActionName = "acceptCoatOffer"
	ActionDeclineCoatOffer ActionName = "declineCoatOffer"
	ActionBuyGun           ActionName = "buyGun"
	ActionFightCop         ActionName = "fightCop"
	ActionRunFromCop       ActionName = "runFromCop"
)

// ActionParams carries the optional parameters of a game action. Which fields
// are read depends on the action: travelTo uses Location, buy/sell use
// GoodIndex and Amount, bank and loan actions use Amount.
type ActionParams struct {
	Location  int
	GoodIndex int
	Amount    int64
}

// PlayerSnapshot mirrors the authoritative server-side player state. It is
// replaced wholesale on every successful state payload; during optimistic
// trades Cash is a display value only until reconciled.
type PlayerSnapshot struct {
	Cash                 int64
	Debt                 int64
	BankBalance          int64
	TrenchcoatCapacity   int64
	Health               int64
	HasGun               bool
	Location             int
	DaysPlayed           int
	LastEventDescription string
	NetWorthGoal         int64
	CurrentNetWorth      int64
	CoatOfferPending     bool
	CopEncounterPending  bool
	WonAtDay             int
}

// InventoryLine is one tradable good: held units at the current price.
type InventoryLine struct {
	Name   string
	Amount int64
	Price  int64
}

// StateSnapshot is the full state payload a backend returns: the player
// snapshot plus the inventory lines and the player's ICE total.
type StateSnapshot struct {
	Player    PlayerSnapshot
	Inventory [GoodCount]int64
	Prices    [GoodCount]int64
	TotalIce  int64
}

// NetWorth derives cash + bank - debt + inventory value at current prices.
func (snapshot StateSnapshot) NetWorth() int64 {
	total := snapshot.Player.Cash + snapshot.Player.BankBalance - snapshot.Player.Debt
	for index := 0; index < GoodCount; index++ {
		total += snapshot.Inventory[index] * snapshot.Prices[index]
	}
	return total
}

// ActionResult is a backend's answer to a dispatched action.
type ActionResult struct {
	State            *StateSnapshot
	EventDescription string
	MustSettle       bool
}

// SettlementPacket is the server-attested final outcome of a run. Lifecycle
// is strictly linear and single-use per RunID.
type SettlementPacket struct {
	RunID         string
	FinalNetWorth int64
	DaysPlayed    int64
	Signature     string
	DidWin        bool
	WonAtDay      int
	IceAwarded    int64
	TotalIce      int64
}

// Validate checks the fields the settlement contract requires. A missing
// field indicates a backend/contract mismatch, not a transient failure.
func (packet SettlementPacket) Validate() error {
	if strings.TrimSpace(packet.RunID) == "" {
		return fmt.Errorf("%w: missing run id", ErrInvalidSettlementData)
	}
	if strings.TrimSpace(packet.Signature) == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSettlementData)
	}
	if packet.FinalNetWorth < 0 {
		return fmt.Errorf("%w: negative net worth", ErrInvalidSettlementData)
	}
	if packet.DaysPlayed <= 0 {
		return fmt.Errorf("%w: missing days played", ErrInvalidSettlementData)
	}
	return nil
}

// SettlementAck notifies the backend that a run settled on-chain.
type SettlementAck struct {
	RunID           string
	TransactionHash TxHash
	Player          WalletAddress
}

// LeaderboardSort selects the leaderboard ordering.
type LeaderboardSort string

const (
	LeaderboardByTotalIce     LeaderboardSort = "total_ice"
	LeaderboardByBestNetWorth LeaderboardSort = "best_net_worth"
)

// LeaderboardRow is one aggregate leaderboard entry.
type LeaderboardRow struct {
	Player       WalletAddress
	BestNetWorth int64
	TotalIce     int64
}

// PendingActionState drives in-flight UI affordances. It has no effect on
// correctness.
type PendingActionState struct {
	Loading            bool
	CurrentActionLabel string
	PendingCash        bool
	PendingGoodIndices map[int]bool
}

func validGoodIndex(index int) error {
	if index < 0 || index >= GoodCount {
		return fmt.Errorf("%w: %d", ErrInvalidGoodIndex, index)
	}
	return nil
}

func validLocation(location int) error {
	if location < 0 || location >= LocationCount {
		return fmt.Errorf("%w: %d", ErrInvalidLocation, location)
	}
	return nil
}

func validTradeAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

// IsDeathEvent reports whether a server event description records the
// player's death. Callers use it to branch into settlement.
func IsDeathEvent(eventDescription string) bool {
	return strings.Contains(strings.ToLower(eventDescription), "died")
}
