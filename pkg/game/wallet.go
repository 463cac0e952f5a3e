package game

import "context"

// Wallet is a transaction-capable connection handle to the player's account.
// It is acquired once per session and reused for every signing operation.
//
// Implementations map their failure modes onto the session's error taxonomy:
// a user-declined signing request unwraps to ErrTransactionCancelled and a
// gas shortfall unwraps to ErrInsufficientGas.
type Wallet interface {
	// Address returns the connected account address.
	Address() WalletAddress

	// SignMessage signs an arbitrary message with the account key. Used for
	// the session-start challenge handshake.
	SignMessage(ctx context.Context, message string) (string, error)

	// SettleRun submits the settlement transaction for the packet and
	// returns its hash. It does not wait for confirmation.
	SettleRun(ctx context.Context, packet SettlementPacket) (TxHash, error)

	// WaitForConfirmation blocks until the transaction is confirmed or the
	// context expires.
	WaitForConfirmation(ctx context.Context, hash TxHash) error
}

// WalletProvider connects to the host wallet environment.
type WalletProvider interface {
	Connect(ctx context.Context) (Wallet, error)
}
