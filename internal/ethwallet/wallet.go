// Package ethwallet implements the game wallet contract with a local private
// key against an Ethereum JSON-RPC endpoint. It signs the session key
// handshake message and submits settleRun transactions to the settlement
// contract.
package ethwallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/dopewars-xyz/gameclient/pkg/game"
)

// settleRunABI is the settlement contract surface the client calls.
const settleRunABI = `[{"name":"settleRun","type":"function","inputs":[` +
	`{"name":"player","type":"address"},` +
	`{"name":"finalNetWorth","type":"uint256"},` +
	`{"name":"daysPlayed","type":"uint256"},` +
	`{"name":"runId","type":"bytes32"},` +
	`{"name":"signature","type":"bytes"}],"outputs":[]}]`

const (
	defaultGasLimit     = uint64(300000)
	defaultPollInterval = 3 * time.Second
)

// chainBackend is the slice of the Ethereum client the wallet needs.
// *ethclient.Client satisfies it.
type chainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ApproveFunc is consulted before a settlement transaction is signed. It
// stands in for a wallet confirmation prompt; returning false cancels the
// transaction.
type ApproveFunc func(packet game.SettlementPacket) bool

// Wallet signs messages and submits settlement transactions with a local key.
type Wallet struct {
	privateKey   *ecdsa.PrivateKey
	account      common.Address
	address      game.WalletAddress
	backend      chainBackend
	contract     common.Address
	chainID      *big.Int
	gasLimit     uint64
	pollInterval time.Duration
	approve      ApproveFunc
	logger       *zap.Logger
	settleABI    abi.ABI
}

// Option configures a Wallet instance.
type Option func(*Wallet)

// WithApproval wires a confirmation prompt for settlement transactions.
func WithApproval(approve ApproveFunc) Option {
	return func(wallet *Wallet) {
		wallet.approve = approve
	}
}

// WithGasLimit overrides the settlement gas limit.
func WithGasLimit(gasLimit uint64) Option {
	return func(wallet *Wallet) {
		if gasLimit > 0 {
			wallet.gasLimit = gasLimit
		}
	}
}

// WithPollInterval overrides the receipt poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(wallet *Wallet) {
		if interval > 0 {
			wallet.pollInterval = interval
		}
	}
}

// WithLogger wires a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(wallet *Wallet) {
		if logger != nil {
			wallet.logger = logger
		}
	}
}

// New builds a wallet from a hex-encoded private key.
func New(privateKeyHex string, backend chainBackend, contract common.Address, chainID *big.Int, options ...Option) (*Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("ethwallet: parse private key: %w", err)
	}
	if backend == nil {
		return nil, errors.New("ethwallet: chain backend is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("ethwallet: chain id is required")
	}

	account := crypto.PubkeyToAddress(privateKey.PublicKey)
	address, err := game.NewWalletAddress(account.Hex())
	if err != nil {
		return nil, fmt.Errorf("ethwallet: derive address: %w", err)
	}
	settleABI, err := abi.JSON(strings.NewReader(settleRunABI))
	if err != nil {
		return nil, fmt.Errorf("ethwallet: parse contract abi: %w", err)
	}

	wallet := &Wallet{
		privateKey:   privateKey,
		account:      account,
		address:      address,
		backend:      backend,
		contract:     contract,
		chainID:      new(big.Int).Set(chainID),
		gasLimit:     defaultGasLimit,
		pollInterval: defaultPollInterval,
		logger:       zap.NewNop(),
		settleABI:    settleABI,
	}
	for _, option := range options {
		if option != nil {
			option(wallet)
		}
	}
	return wallet, nil
}

// Address returns the normalized account address.
func (wallet *Wallet) Address() game.WalletAddress {
	return wallet.address
}

// SignMessage produces an EIP-191 personal-sign signature over message.
func (wallet *Wallet) SignMessage(_ context.Context, message string) (string, error) {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := crypto.Keccak256([]byte(prefixed))
	signature, err := crypto.Sign(digest, wallet.privateKey)
	if err != nil {
		return "", fmt.Errorf("ethwallet: sign message: %w", err)
	}
	// Wallets emit the legacy 27/28 recovery id.
	signature[64] += 27
	return "0x" + hex.EncodeToString(signature), nil
}

// SettleRun submits settleRun(player, finalNetWorth, daysPlayed, runId,
// signature) to the settlement contract and returns the transaction hash.
func (wallet *Wallet) SettleRun(ctx context.Context, packet game.SettlementPacket) (game.TxHash, error) {
	if wallet.approve != nil && !wallet.approve(packet) {
		return "", game.ErrTransactionCancelled
	}

	input, err := wallet.packSettleRun(packet)
	if err != nil {
		return "", err
	}

	nonce, err := wallet.backend.PendingNonceAt(ctx, wallet.account)
	if err != nil {
		return "", fmt.Errorf("ethwallet: fetch nonce: %w", err)
	}
	gasPrice, err := wallet.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("ethwallet: suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, wallet.contract, big.NewInt(0), wallet.gasLimit, gasPrice, input)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(wallet.chainID), wallet.privateKey)
	if err != nil {
		return "", fmt.Errorf("ethwallet: sign transaction: %w", err)
	}

	if err := wallet.backend.SendTransaction(ctx, signed); err != nil {
		return "", mapSendError(err)
	}
	hash := signed.Hash().Hex()
	wallet.logger.Info("settlement transaction submitted",
		zap.String("tx", hash),
		zap.String("run", packet.RunID),
	)
	return game.TxHash(hash), nil
}

// packSettleRun encodes the contract call data from a settlement packet.
func (wallet *Wallet) packSettleRun(packet game.SettlementPacket) ([]byte, error) {
	runID, err := decodeRunID(packet.RunID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrInvalidSettlementData, err)
	}
	signature, err := hex.DecodeString(strings.TrimPrefix(packet.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature", game.ErrInvalidSettlementData)
	}
	input, err := wallet.settleABI.Pack("settleRun",
		wallet.account,
		big.NewInt(packet.FinalNetWorth),
		big.NewInt(packet.DaysPlayed),
		runID,
		signature,
	)
	if err != nil {
		return nil, fmt.Errorf("ethwallet: pack settleRun: %w", err)
	}
	return input, nil
}

// WaitForConfirmation polls for the transaction receipt until the context
// expires. A mined receipt with a failed status is a hard error.
func (wallet *Wallet) WaitForConfirmation(ctx context.Context, hash game.TxHash) error {
	txHash := common.HexToHash(hash.String())
	ticker := time.NewTicker(wallet.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := wallet.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return fmt.Errorf("ethwallet: transaction %s reverted", hash)
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			wallet.logger.Debug("receipt poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ethwallet: confirmation: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func decodeRunID(raw string) ([32]byte, error) {
	var runID [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return runID, fmt.Errorf("malformed run id %q", raw)
	}
	if len(decoded) != len(runID) {
		return runID, fmt.Errorf("run id must be 32 bytes, got %d", len(decoded))
	}
	copy(runID[:], decoded)
	return runID, nil
}

// mapSendError surfaces well-known node rejections as domain errors.
func mapSendError(err error) error {
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "insufficient funds") {
		return fmt.Errorf("%w: %v", game.ErrInsufficientGas, err)
	}
	return fmt.Errorf("ethwallet: send transaction: %w", err)
}

// Provider dials an RPC endpoint and yields a key-backed wallet.
type Provider struct {
	rpcURL        string
	privateKeyHex string
	contract      common.Address
	options       []Option
}

// NewProvider builds a wallet provider for the given endpoint and key.
func NewProvider(rpcURL string, privateKeyHex string, contract common.Address, options ...Option) (*Provider, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, errors.New("ethwallet: rpc url is required")
	}
	if strings.TrimSpace(privateKeyHex) == "" {
		return nil, errors.New("ethwallet: private key is required")
	}
	return &Provider{
		rpcURL:        rpcURL,
		privateKeyHex: privateKeyHex,
		contract:      contract,
		options:       options,
	}, nil
}

// Connect dials the endpoint, resolves the chain id, and returns the wallet.
func (provider *Provider) Connect(ctx context.Context) (game.Wallet, error) {
	client, err := ethclient.DialContext(ctx, provider.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethwallet: dial %s: %w", provider.rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethwallet: resolve chain id: %w", err)
	}
	return New(provider.privateKeyHex, client, provider.contract, chainID, provider.options...)
}
