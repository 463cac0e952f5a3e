package game

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session owns the client-side game state for one wallet: connection handle,
// session-active flag, the authoritative snapshot mirror, in-flight markers,
// and the single-slot error reporter.
//
// Lifecycle: ConnectWallet acquires the wallet handle, StartSession begins a
// run, Settle ends it. A fetch failure or a server-reported "no active game"
// deactivates the session (fail-closed).
type Session struct {
	backend  Backend
	provider WalletProvider
	nowFn    func() time.Time
	logger   OperationLogger

	reconcileDelay       time.Duration
	trailingRefreshDelay time.Duration
	errorTTL             time.Duration
	confirmTimeout       time.Duration

	mu               sync.Mutex
	wallet           Wallet
	active           bool
	hasState         bool
	state            StateSnapshot
	loading          bool
	actionLabel      string
	pendingCash      int
	pendingGoods     map[int]int
	blockingInFlight bool
	settlePhase      SettlePhase
	currentError     *surfacedError

	trades sync.WaitGroup
}

// NewSession wires a Session. The provider may be nil when no wallet
// integration exists; ConnectWallet then fails with ErrNoWallet.
func NewSession(backend Backend, provider WalletProvider, options ...SessionOption) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend dependency is nil", ErrInvalidSessionConfig)
	}
	session := &Session{
		backend:              backend,
		provider:             provider,
		nowFn:                time.Now,
		reconcileDelay:       defaultReconcileDelay,
		trailingRefreshDelay: defaultTrailingRefreshDelay,
		errorTTL:             defaultErrorTTL,
		confirmTimeout:       defaultConfirmTimeout,
		pendingGoods:         map[int]int{},
		settlePhase:          SettleIdle,
	}
	for _, option := range options {
		if option != nil {
			option(session)
		}
	}
	return session, nil
}

// ConnectWallet acquires an account address and a transaction-capable
// connection handle from the host wallet environment. It does not yet mark a
// session active.
func (session *Session) ConnectWallet(ctx context.Context) error {
	if session.provider == nil {
		session.showError("No wallet found. Configure a wallet to play.", operationConnectWallet)
		return WrapError(operationConnectWallet, codeNoWallet, ErrNoWallet)
	}
	wallet, err := session.provider.Connect(ctx)
	if err != nil {
		session.showError(err.Error(), operationConnectWallet)
		session.logOperation(ctx, OperationLog{Operation: operationConnectWallet, Error: err})
		return WrapError(operationConnectWallet, codeBackend, err)
	}
	session.mu.Lock()
	session.wallet = wallet
	session.mu.Unlock()
	session.logOperation(ctx, OperationLog{Operation: operationConnectWallet, Player: wallet.Address()})
	return nil
}

// StartSession begins a game run for the connected wallet and refreshes
// state. On failure the session remains inactive.
func (session *Session) StartSession(ctx context.Context) error {
	session.mu.Lock()
	wallet := session.wallet
	if wallet == nil {
		session.showErrorLocked("Connect wallet first", operationStartSession)
		session.mu.Unlock()
		return WrapError(operationStartSession, codeNotConnected, ErrNotConnected)
	}
	session.loading = true
	session.actionLabel = labelStartingSession
	session.mu.Unlock()

	defer session.clearLoading()

	if err := session.backend.StartRun(ctx, wallet); err != nil {
		session.showError(err.Error(), operationStartSession)
		session.logOperation(ctx, OperationLog{Operation: operationStartSession, Player: wallet.Address(), Error: err})
		return WrapError(operationStartSession, codeBackend, err)
	}

	session.mu.Lock()
	session.active = true
	session.mu.Unlock()
	session.logOperation(ctx, OperationLog{Operation: operationStartSession, Player: wallet.Address()})
	return session.RefreshGameState(ctx)
}

// RefreshGameState fetches the authoritative server state and replaces the
// local snapshot wholesale. "No active game" and fetch failures both
// deactivate the session and clear the snapshot.
func (session *Session) RefreshGameState(ctx context.Context) error {
	session.mu.Lock()
	wallet := session.wallet
	session.mu.Unlock()
	if wallet == nil {
		return WrapError(operationRefreshState, codeNotConnected, ErrNotConnected)
	}

	snapshot, err := session.backend.FetchState(ctx, wallet.Address())

	session.mu.Lock()
	defer session.mu.Unlock()
	if err != nil {
		session.active = false
		session.hasState = false
		session.state = StateSnapshot{}
		return WrapError(operationRefreshState, codeNoActiveRun, err)
	}
	session.applyStateLocked(snapshot)
	return nil
}

// applyStateLocked is the single authoritative write path: it overwrites any
// optimistic local mutation once a server round-trip completes.
func (session *Session) applyStateLocked(snapshot StateSnapshot) {
	session.state = snapshot
	session.hasState = true
	session.active = true
}

// Leaderboard fetches aggregate rows from the backend. It does not require
// an active session.
func (session *Session) Leaderboard(ctx context.Context, sortBy LeaderboardSort, limit int) ([]LeaderboardRow, error) {
	rows, err := session.backend.Leaderboard(ctx, sortBy, limit)
	if err != nil {
		return nil, WrapError(operationLeaderboard, codeBackend, err)
	}
	return rows, nil
}

func (session *Session) requireActiveLocked() (Wallet, error) {
	if session.wallet == nil || !session.active {
		return nil, ErrSessionNotActive
	}
	return session.wallet, nil
}

func (session *Session) clearLoading() {
	session.mu.Lock()
	session.loading = false
	session.actionLabel = ""
	session.mu.Unlock()
}

func (session *Session) logOperation(ctx context.Context, entry OperationLog) {
	if session.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	session.logger.LogOperation(ctx, entry)
}

// WalletAddress returns the connected address, if any.
func (session *Session) WalletAddress() (WalletAddress, bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.wallet == nil {
		return WalletAddress{}, false
	}
	return session.wallet.Address(), true
}

// Active reports whether a run is active for the connected wallet.
func (session *Session) Active() bool {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.active
}

// State returns a copy of the current snapshot. ok is false when no state
// payload has been applied.
func (session *Session) State() (StateSnapshot, bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.state, session.hasState
}

// Inventory returns the inventory lines derived from the current snapshot.
func (session *Session) Inventory() []InventoryLine {
	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.hasState {
		return nil
	}
	lines := make([]InventoryLine, 0, GoodCount)
	for index := 0; index < GoodCount; index++ {
		lines = append(lines, InventoryLine{
			Name:   GoodNames[index],
			Amount: session.state.Inventory[index],
			Price:  session.state.Prices[index],
		})
	}
	return lines
}

// Pending returns a copy of the in-flight UI state.
func (session *Session) Pending() PendingActionState {
	session.mu.Lock()
	defer session.mu.Unlock()
	indices := make(map[int]bool, len(session.pendingGoods))
	for index, count := range session.pendingGoods {
		if count > 0 {
			indices[index] = true
		}
	}
	return PendingActionState{
		Loading:            session.loading,
		CurrentActionLabel: session.actionLabel,
		PendingCash:        session.pendingCash > 0,
		PendingGoodIndices: indices,
	}
}
