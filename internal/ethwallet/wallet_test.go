package ethwallet

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dopewars-xyz/gameclient/pkg/game"
)

// Well-known throwaway development key. Never funded.
const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAccount    = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	testRunID      = "0x6fd43e7cffc31bb581d7421c8698e29aa2bd8e7186a394b85299908b4eb9b175"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000d09e5")

type backendStub struct {
	mu         sync.Mutex
	nonce      uint64
	gasPrice   *big.Int
	sendErr    error
	sent       []*types.Transaction
	receipt    *types.Receipt
	receiptErr error
}

func (backend *backendStub) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return backend.nonce, nil
}

func (backend *backendStub) SuggestGasPrice(context.Context) (*big.Int, error) {
	if backend.gasPrice == nil {
		return big.NewInt(1000000000), nil
	}
	return backend.gasPrice, nil
}

func (backend *backendStub) SendTransaction(_ context.Context, tx *types.Transaction) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.sendErr != nil {
		return backend.sendErr
	}
	backend.sent = append(backend.sent, tx)
	return nil
}

func (backend *backendStub) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.receiptErr != nil {
		return nil, backend.receiptErr
	}
	return backend.receipt, nil
}

func newTestWallet(test *testing.T, backend *backendStub, options ...Option) *Wallet {
	test.Helper()
	wallet, err := New(testPrivateKey, backend, testContract, big.NewInt(8453), options...)
	if err != nil {
		test.Fatalf("wallet init failed: %v", err)
	}
	return wallet
}

func testPacket() game.SettlementPacket {
	return game.SettlementPacket{
		RunID:         testRunID,
		FinalNetWorth: 42000,
		DaysPlayed:    12,
		Signature:     "0x1234abcd",
		IceAwarded:    1,
	}
}

func TestNewRejectsBadInputs(test *testing.T) {
	if _, err := New("not-hex", &backendStub{}, testContract, big.NewInt(1)); err == nil {
		test.Fatal("expected private key parse failure")
	}
	if _, err := New(testPrivateKey, nil, testContract, big.NewInt(1)); err == nil {
		test.Fatal("expected backend requirement failure")
	}
	if _, err := New(testPrivateKey, &backendStub{}, testContract, nil); err == nil {
		test.Fatal("expected chain id requirement failure")
	}
}

func TestAddressDerivation(test *testing.T) {
	wallet := newTestWallet(test, &backendStub{})
	if wallet.Address().String() != testAccount {
		test.Fatalf("unexpected address: %s", wallet.Address())
	}
}

func TestSignMessageIsRecoverable(test *testing.T) {
	wallet := newTestWallet(test, &backendStub{})
	message := "DopeWars Session Key\nNonce: abc\nExpires: 2025-06-01T12:00:00Z"

	encoded, err := wallet.SignMessage(context.Background(), message)
	if err != nil {
		test.Fatalf("sign failed: %v", err)
	}
	signature, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil {
		test.Fatalf("decode signature: %v", err)
	}
	if len(signature) != 65 {
		test.Fatalf("expected 65-byte signature, got %d", len(signature))
	}
	if signature[64] != 27 && signature[64] != 28 {
		test.Fatalf("expected legacy recovery id, got %d", signature[64])
	}

	signature[64] -= 27
	prefixed := "\x19Ethereum Signed Message:\n" + big.NewInt(int64(len(message))).String() + message
	digest := crypto.Keccak256([]byte(prefixed))
	publicKey, err := crypto.SigToPub(digest, signature)
	if err != nil {
		test.Fatalf("recover signer: %v", err)
	}
	if got := crypto.PubkeyToAddress(*publicKey); !strings.EqualFold(got.Hex(), testAccount) {
		test.Fatalf("recovered signer %s, want %s", got.Hex(), testAccount)
	}
}

func TestSettleRunPacksCallData(test *testing.T) {
	backend := &backendStub{nonce: 7}
	wallet := newTestWallet(test, backend)

	hash, err := wallet.SettleRun(context.Background(), testPacket())
	if err != nil {
		test.Fatalf("settle failed: %v", err)
	}
	if hash == "" {
		test.Fatal("expected a transaction hash")
	}
	if len(backend.sent) != 1 {
		test.Fatalf("expected one transaction, got %d", len(backend.sent))
	}

	tx := backend.sent[0]
	if tx.To() == nil || *tx.To() != testContract {
		test.Fatalf("unexpected recipient: %v", tx.To())
	}
	if tx.Nonce() != 7 {
		test.Fatalf("unexpected nonce: %d", tx.Nonce())
	}

	method := wallet.settleABI.Methods["settleRun"]
	data := tx.Data()
	if len(data) < 4 || !strings.EqualFold(hex.EncodeToString(data[:4]), hex.EncodeToString(method.ID)) {
		test.Fatal("call data must start with the settleRun selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		test.Fatalf("unpack call data: %v", err)
	}
	if player := args[0].(common.Address); !strings.EqualFold(player.Hex(), testAccount) {
		test.Fatalf("unexpected player arg: %s", player.Hex())
	}
	if netWorth := args[1].(*big.Int); netWorth.Int64() != 42000 {
		test.Fatalf("unexpected net worth arg: %s", netWorth)
	}
	if days := args[2].(*big.Int); days.Int64() != 12 {
		test.Fatalf("unexpected days arg: %s", days)
	}
	runID := args[3].([32]byte)
	if got := "0x" + hex.EncodeToString(runID[:]); got != testRunID {
		test.Fatalf("unexpected run id arg: %s", got)
	}
	if signature := args[4].([]byte); hex.EncodeToString(signature) != "1234abcd" {
		test.Fatalf("unexpected signature arg: %x", signature)
	}
}

func TestSettleRunApprovalDeclined(test *testing.T) {
	backend := &backendStub{}
	wallet := newTestWallet(test, backend, WithApproval(func(game.SettlementPacket) bool { return false }))

	_, err := wallet.SettleRun(context.Background(), testPacket())
	if !errors.Is(err, game.ErrTransactionCancelled) {
		test.Fatalf("expected ErrTransactionCancelled, got %v", err)
	}
	if len(backend.sent) != 0 {
		test.Fatal("declined approval must not submit a transaction")
	}
}

func TestSettleRunMapsInsufficientFunds(test *testing.T) {
	backend := &backendStub{sendErr: errors.New("insufficient funds for gas * price + value")}
	wallet := newTestWallet(test, backend)

	_, err := wallet.SettleRun(context.Background(), testPacket())
	if !errors.Is(err, game.ErrInsufficientGas) {
		test.Fatalf("expected ErrInsufficientGas, got %v", err)
	}
}

func TestSettleRunRejectsMalformedPacket(test *testing.T) {
	wallet := newTestWallet(test, &backendStub{})

	badRunID := testPacket()
	badRunID.RunID = "0x1234"
	if _, err := wallet.SettleRun(context.Background(), badRunID); !errors.Is(err, game.ErrInvalidSettlementData) {
		test.Fatalf("expected ErrInvalidSettlementData for short run id, got %v", err)
	}

	badSignature := testPacket()
	badSignature.Signature = "0xzz"
	if _, err := wallet.SettleRun(context.Background(), badSignature); !errors.Is(err, game.ErrInvalidSettlementData) {
		test.Fatalf("expected ErrInvalidSettlementData for bad signature, got %v", err)
	}
}

func TestWaitForConfirmationSuccess(test *testing.T) {
	backend := &backendStub{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	wallet := newTestWallet(test, backend, WithPollInterval(time.Millisecond))

	if err := wallet.WaitForConfirmation(context.Background(), "0xabc"); err != nil {
		test.Fatalf("confirmation failed: %v", err)
	}
}

func TestWaitForConfirmationReverted(test *testing.T) {
	backend := &backendStub{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	wallet := newTestWallet(test, backend, WithPollInterval(time.Millisecond))

	if err := wallet.WaitForConfirmation(context.Background(), "0xabc"); err == nil {
		test.Fatal("expected an error for a reverted transaction")
	}
}

func TestWaitForConfirmationTimesOut(test *testing.T) {
	backend := &backendStub{receiptErr: ethereum.NotFound}
	wallet := newTestWallet(test, backend, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := wallet.WaitForConfirmation(ctx, "0xabc")
	if !errors.Is(err, context.DeadlineExceeded) {
		test.Fatalf("expected deadline exceeded, got %v", err)
	}
}
