package game

import (
	"context"
	"errors"
)

// SettlePhase tracks the settlement coordinator's state machine.
type SettlePhase string

const (
	SettleIdle                 SettlePhase = "idle"
	SettlePreparing            SettlePhase = "preparing"
	SettleAwaitingSignature    SettlePhase = "awaiting_signature"
	SettleAwaitingConfirmation SettlePhase = "awaiting_confirmation"
	SettleAcknowledging        SettlePhase = "acknowledging"
	SettleDone                 SettlePhase = "done"
	SettleFailed               SettlePhase = "failed"
)

// SettlePhase returns the coordinator's current phase.
func (session *Session) SettlePhase() SettlePhase {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.settlePhase
}

func (session *Session) setPhase(phase SettlePhase, label string) {
	session.mu.Lock()
	session.settlePhase = phase
	if label != "" {
		session.actionLabel = label
	}
	session.mu.Unlock()
}

// Settle runs the three-phase settlement protocol: prepare a signed packet
// with the backend, submit the settleRun transaction through the wallet, and
// acknowledge completion. onComplete receives the packet before the session
// resets so callers can present final results.
//
// Failure modes by phase:
//   - Preparing: backend rejection is retryable; a malformed packet is
//     ErrInvalidSettlementData and fatal.
//   - AwaitingSignature: a user-declined signing request surfaces as a
//     cancellation; the run stays saved server-side and settlement can be
//     retried.
//   - AwaitingConfirmation: exceeding the confirmation bound surfaces as a
//     timeout, not a transaction failure; the transaction may still land.
//   - Acknowledging: failure is logged and does not roll back success; the
//     chain is the source of truth for payout.
//
// On success the session resets: a new session must start to play again.
func (session *Session) Settle(ctx context.Context, onComplete func(SettlementPacket)) error {
	session.mu.Lock()
	wallet, err := session.requireActiveLocked()
	if err != nil {
		session.showErrorLocked("Session not active", operationSettle)
		session.mu.Unlock()
		return WrapError(operationSettle, codeSessionInactive, err)
	}
	if session.blockingInFlight {
		session.mu.Unlock()
		return WrapError(operationSettle, codeInFlight, ErrActionInFlight)
	}
	session.blockingInFlight = true
	session.loading = true
	session.settlePhase = SettlePreparing
	session.actionLabel = labelPreparingSettle
	session.mu.Unlock()

	defer func() {
		session.mu.Lock()
		session.blockingInFlight = false
		session.loading = false
		session.actionLabel = ""
		session.mu.Unlock()
	}()

	player := wallet.Address()

	packet, err := session.backend.PrepareSettlement(ctx, player)
	if err != nil {
		session.setPhase(SettleFailed, "")
		session.showError(err.Error(), operationSettle)
		session.logOperation(ctx, OperationLog{Operation: operationSettle, Player: player, Error: err})
		return WrapError(operationSettle, codeBackend, err)
	}
	if err := packet.Validate(); err != nil {
		session.setPhase(SettleFailed, "")
		session.showError("Invalid settlement data from server. Please contact support.", operationSettle)
		session.logOperation(ctx, OperationLog{Operation: operationSettle, Player: player, Error: err})
		return WrapError(operationSettle, codePacket, err)
	}

	session.setPhase(SettleAwaitingSignature, labelAwaitingSignature)
	hash, err := wallet.SettleRun(ctx, packet)
	if err != nil {
		session.setPhase(SettleFailed, "")
		session.showError(settleErrorMessage(err), operationSettle)
		session.logOperation(ctx, OperationLog{Operation: operationSettle, Player: player, Detail: packet.RunID, Error: err})
		return WrapError(operationSettle, codeSignature, err)
	}

	session.setPhase(SettleAwaitingConfirmation, labelAwaitingConfirm)
	confirmCtx, cancel := context.WithTimeout(ctx, session.confirmTimeout)
	err = wallet.WaitForConfirmation(confirmCtx, hash)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTransactionTimeout
		}
		session.setPhase(SettleFailed, "")
		session.showError(settleErrorMessage(err), operationSettle)
		session.logOperation(ctx, OperationLog{Operation: operationSettle, Player: player, Detail: packet.RunID, Error: err})
		return WrapError(operationSettle, codeConfirmation, err)
	}

	session.setPhase(SettleAcknowledging, "")
	ack := SettlementAck{RunID: packet.RunID, TransactionHash: hash, Player: player}
	if ackErr := session.backend.AcknowledgeSettlement(ctx, ack); ackErr != nil {
		session.logOperation(ctx, OperationLog{Operation: operationSettle, Player: player, Detail: "acknowledge failed: " + packet.RunID, Error: ackErr, Status: operationStatusOK})
	}

	if onComplete != nil {
		onComplete(packet)
	}

	session.mu.Lock()
	session.active = false
	session.hasState = false
	session.state = StateSnapshot{}
	session.pendingCash = 0
	session.pendingGoods = map[int]int{}
	session.settlePhase = SettleDone
	session.mu.Unlock()

	session.logOperation(ctx, OperationLog{Operation: operationSettle, Player: player, Detail: packet.RunID})
	return nil
}

// settleErrorMessage maps settlement failures to recovery guidance: retry on
// cancellation, wait on timeout, top up on gas shortfall.
func settleErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrTransactionCancelled):
		return messageTxCancelled
	case errors.Is(err, ErrTransactionTimeout):
		return messageTxTimeout
	case errors.Is(err, ErrInsufficientGas):
		return messageTxGas
	default:
		return "Transaction failed: " + err.Error()
	}
}
