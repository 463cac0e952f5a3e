package devserver

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// sessionKeyMessage is the exact string wallets sign during the start
// handshake.
const sessionKeyMessage = "DopeWars Session Key\nNonce: %s\nExpires: %s"

var errBadSignature = errors.New("signature does not match player address")

// settlementSigner attests settlement packets with the server key. The
// settlement contract recovers the same signer from the packet fields.
type settlementSigner struct {
	privateKey *ecdsa.PrivateKey
	signer     common.Address
}

func newSettlementSigner(privateKeyHex string) (*settlementSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &settlementSigner{
		privateKey: privateKey,
		signer:     crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// runIDFor derives the on-chain bytes32 run identifier from the stored run.
func runIDFor(storedRunID string, playerAddress string) string {
	digest := crypto.Keccak256([]byte(storedRunID), common.HexToAddress(playerAddress).Bytes())
	return "0x" + hex.EncodeToString(digest)
}

// signPacket signs keccak256(player || finalNetWorth || daysPlayed || runId)
// wrapped in the EIP-191 prefix, matching the contract's recovery path.
func (signer *settlementSigner) signPacket(playerAddress string, finalNetWorth int64, daysPlayed int64, runIDHex string) (string, error) {
	runID, err := hex.DecodeString(strings.TrimPrefix(runIDHex, "0x"))
	if err != nil || len(runID) != 32 {
		return "", fmt.Errorf("malformed run id %q", runIDHex)
	}

	packed := make([]byte, 0, 20+32+32+32)
	packed = append(packed, common.HexToAddress(playerAddress).Bytes()...)
	packed = append(packed, math.U256Bytes(big.NewInt(finalNetWorth))...)
	packed = append(packed, math.U256Bytes(big.NewInt(daysPlayed))...)
	packed = append(packed, runID...)
	digest := crypto.Keccak256(packed)

	prefixed := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n32%s", digest)))
	signature, err := crypto.Sign(prefixed, signer.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign packet: %w", err)
	}
	signature[64] += 27
	return "0x" + hex.EncodeToString(signature), nil
}

// verifySessionKey checks an EIP-191 personal-sign signature over the
// session key message against the claimed player address.
func verifySessionKey(playerAddress string, nonce string, expiresAt string, signatureHex string) error {
	message := fmt.Sprintf(sessionKeyMessage, nonce, expiresAt)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := crypto.Keccak256([]byte(prefixed))

	signature, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signatureHex), "0x"))
	if err != nil || len(signature) != 65 {
		return errBadSignature
	}
	recovery := make([]byte, 65)
	copy(recovery, signature)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	publicKey, err := crypto.SigToPub(digest, recovery)
	if err != nil {
		return errBadSignature
	}
	recovered := crypto.PubkeyToAddress(*publicKey)
	if !strings.EqualFold(recovered.Hex(), playerAddress) {
		return errBadSignature
	}
	return nil
}
