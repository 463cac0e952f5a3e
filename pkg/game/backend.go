package game

import "context"

// Backend is the authoritative game service reached over the wire. The
// session treats it as the sole arbiter of game-state consistency.
type Backend interface {
	// StartRun begins a run for the signer's address. Implementations that
	// require a challenge handshake use the signer to produce the session
	// signature.
	StartRun(ctx context.Context, signer Wallet) error

	// FetchState returns the current server-side state for the player.
	// Returns ErrNoActiveRun when the server reports no active game.
	FetchState(ctx context.Context, player WalletAddress) (StateSnapshot, error)

	// SubmitAction dispatches a named action with its parameters.
	SubmitAction(ctx context.Context, player WalletAddress, action ActionName, params ActionParams) (ActionResult, error)

	// PrepareSettlement asks the backend for a signed settlement packet.
	PrepareSettlement(ctx context.Context, player WalletAddress) (SettlementPacket, error)

	// AcknowledgeSettlement reports the settlement transaction back to the
	// backend. Best-effort bookkeeping: callers log failures and move on.
	AcknowledgeSettlement(ctx context.Context, ack SettlementAck) error

	// Leaderboard returns aggregate rows in the requested order.
	Leaderboard(ctx context.Context, sortBy LeaderboardSort, limit int) ([]LeaderboardRow, error)
}
