package game

import (
	"context"
	"sync"
	"testing"
	"time"
)

const (
	testAddressValue = "0x58b200a5ac031dd6245ffc63e0a247aee39ec609"
	testRunIDValue   = "0x6fd43e7cffc31bb581d7421c8698e29aa2bd8e7186a394b85299908b4eb9b175"
	testSignature    = "0xdeadbeef"
	testTxHash       = TxHash("0xabc123")
)

type stubBackend struct {
	mu sync.Mutex

	state          StateSnapshot
	fetchErr       error
	startErr       error
	actionResult   ActionResult
	actionErr      error
	actionGate     chan struct{}
	packet         SettlementPacket
	prepareErr     error
	ackErr         error
	rows           []LeaderboardRow
	leaderboardErr error

	startCalls   int
	fetchCalls   int
	actionCalls  int
	prepareCalls int
	ackCalls     int
	ackRequests  []SettlementAck
	actions      []ActionName
}

func (backend *stubBackend) StartRun(_ context.Context, _ Wallet) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.startCalls++
	return backend.startErr
}

func (backend *stubBackend) FetchState(_ context.Context, _ WalletAddress) (StateSnapshot, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.fetchCalls++
	if backend.fetchErr != nil {
		return StateSnapshot{}, backend.fetchErr
	}
	return backend.state, nil
}

func (backend *stubBackend) SubmitAction(_ context.Context, _ WalletAddress, action ActionName, _ ActionParams) (ActionResult, error) {
	backend.mu.Lock()
	gate := backend.actionGate
	backend.mu.Unlock()
	if gate != nil {
		<-gate
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.actionCalls++
	backend.actions = append(backend.actions, action)
	if backend.actionErr != nil {
		return ActionResult{}, backend.actionErr
	}
	return backend.actionResult, nil
}

func (backend *stubBackend) PrepareSettlement(_ context.Context, _ WalletAddress) (SettlementPacket, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.prepareCalls++
	if backend.prepareErr != nil {
		return SettlementPacket{}, backend.prepareErr
	}
	return backend.packet, nil
}

func (backend *stubBackend) AcknowledgeSettlement(_ context.Context, ack SettlementAck) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.ackCalls++
	backend.ackRequests = append(backend.ackRequests, ack)
	return backend.ackErr
}

func (backend *stubBackend) Leaderboard(_ context.Context, _ LeaderboardSort, _ int) ([]LeaderboardRow, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.leaderboardErr != nil {
		return nil, backend.leaderboardErr
	}
	return backend.rows, nil
}

func (backend *stubBackend) counts(test *testing.T) (start int, fetch int, action int, prepare int, ack int) {
	test.Helper()
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return backend.startCalls, backend.fetchCalls, backend.actionCalls, backend.prepareCalls, backend.ackCalls
}

type stubWallet struct {
	address     WalletAddress
	signErr     error
	settleHash  TxHash
	settleErr   error
	waitErr     error
	settleCalls int
	waitCalls   int
}

func (wallet *stubWallet) Address() WalletAddress {
	return wallet.address
}

func (wallet *stubWallet) SignMessage(_ context.Context, message string) (string, error) {
	if wallet.signErr != nil {
		return "", wallet.signErr
	}
	return "signed:" + message, nil
}

func (wallet *stubWallet) SettleRun(_ context.Context, _ SettlementPacket) (TxHash, error) {
	wallet.settleCalls++
	if wallet.settleErr != nil {
		return "", wallet.settleErr
	}
	return wallet.settleHash, nil
}

func (wallet *stubWallet) WaitForConfirmation(ctx context.Context, _ TxHash) error {
	wallet.waitCalls++
	if wallet.waitErr != nil {
		return wallet.waitErr
	}
	return ctx.Err()
}

type stubProvider struct {
	wallet Wallet
	err    error
}

func (provider *stubProvider) Connect(_ context.Context) (Wallet, error) {
	if provider.err != nil {
		return nil, provider.err
	}
	return provider.wallet, nil
}

func mustAddress(test *testing.T, raw string) WalletAddress {
	test.Helper()
	address, err := NewWalletAddress(raw)
	if err != nil {
		test.Fatalf("address %q: %v", raw, err)
	}
	return address
}

func baseState() StateSnapshot {
	return StateSnapshot{
		Player: PlayerSnapshot{
			Cash:               1000,
			Debt:               5500,
			BankBalance:        0,
			TrenchcoatCapacity: 100,
			Health:             100,
			Location:           0,
			DaysPlayed:         1,
			NetWorthGoal:       1000000,
		},
		Prices:   [GoodCount]int64{100, 200, 300, 400},
		TotalIce: 3,
	}
}

func validPacket() SettlementPacket {
	return SettlementPacket{
		RunID:         testRunIDValue,
		FinalNetWorth: 42000,
		DaysPlayed:    12,
		Signature:     testSignature,
		DidWin:        false,
		IceAwarded:    1,
		TotalIce:      4,
	}
}

func newTestWallet(test *testing.T) *stubWallet {
	test.Helper()
	return &stubWallet{address: mustAddress(test, testAddressValue), settleHash: testTxHash}
}

// newActiveSession connects the stub wallet and starts a run so the session
// gate is open. Trade reconciliation and the trailing refresh run without
// delay to keep tests deterministic.
func newActiveSession(test *testing.T, backend *stubBackend, wallet *stubWallet, options ...SessionOption) *Session {
	test.Helper()
	base := []SessionOption{
		WithReconcileDelay(0),
		WithTrailingRefreshDelay(0),
		WithErrorTTL(time.Minute),
	}
	session, err := NewSession(backend, &stubProvider{wallet: wallet}, append(base, options...)...)
	if err != nil {
		test.Fatalf("session init failed: %v", err)
	}
	if err := session.ConnectWallet(context.Background()); err != nil {
		test.Fatalf("connect failed: %v", err)
	}
	if err := session.StartSession(context.Background()); err != nil {
		test.Fatalf("start session failed: %v", err)
	}
	return session
}
