package game

import "time"

const (
	operationConnectWallet = "connect_wallet"
	operationStartSession  = "start_session"
	operationRefreshState  = "refresh_state"
	operationDispatch      = "dispatch"
	operationTrade         = "trade"
	operationSettle        = "settle"
	operationLeaderboard   = "leaderboard"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	codeNoWallet        = "no_wallet"
	codeNotConnected    = "not_connected"
	codeSessionInactive = "session_inactive"
	codeInFlight        = "in_flight"
	codeValidation      = "validation"
	codePrecondition    = "precondition"
	codeBackend         = "backend"
	codeMustSettle      = "must_settle"
	codeNoActiveRun     = "no_active_run"
	codePacket          = "packet"
	codeSignature       = "signature"
	codeConfirmation    = "confirmation"

	defaultReconcileDelay       = time.Second
	defaultTrailingRefreshDelay = 2 * time.Second
	defaultErrorTTL             = 5 * time.Second
	defaultConfirmTimeout       = 120 * time.Second

	labelStartingSession   = "Starting session..."
	labelPreparingSettle   = "Preparing settlement..."
	labelAwaitingSignature = "Confirm transaction in your wallet..."
	labelAwaitingConfirm   = "Waiting for blockchain confirmation..."

	messageDayLimit    = "Day 30 reached! You must settle your run now."
	messageTxCancelled = "Transaction cancelled. Your run is still saved."
	messageTxTimeout   = "Transaction is taking longer than expected. Check your wallet to see if it completed."
	messageTxGas       = "Not enough ETH for gas. The transaction needs a small gas buffer."
)

var actionLabels = map[ActionName]string{
	ActionEndDay:           "Ending day...",
	ActionBuy:              "Buying...",
	ActionSell:             "Selling...",
	ActionHustle:           "Hustling...",
	ActionStash:            "Stashing...",
	ActionClaimDailyIce:    "Claiming ICE...",
	ActionTravelTo:         "Traveling...",
	ActionDepositBank:      "Depositing...",
	ActionWithdrawBank:     "Withdrawing...",
	ActionPayLoan:          "Paying loan...",
	ActionAcceptCoatOffer:  "Accepting coat upgrade...",
	ActionDeclineCoatOffer: "Declining coat upgrade...",
	ActionBuyGun:           "Buying gun...",
	ActionFightCop:         "Fighting...",
	ActionRunFromCop:       "Running...",
}
