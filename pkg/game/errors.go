package game

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the game session.
var (
	ErrNoWallet              = errors.New("no wallet available")
	ErrNotConnected          = errors.New("wallet not connected")
	ErrSessionNotActive      = errors.New("session not active")
	ErrActionFailed          = errors.New("action failed")
	ErrActionInFlight        = errors.New("another action is in flight")
	ErrMustSettle            = errors.New("day limit reached, run must settle")
	ErrNoActiveRun           = errors.New("no active run")
	ErrInvalidSettlementData = errors.New("invalid settlement data")
	ErrTransactionCancelled  = errors.New("transaction cancelled")
	ErrTransactionTimeout    = errors.New("transaction confirmation timeout")
	ErrInsufficientGas       = errors.New("insufficient funds for gas")
	ErrInsufficientCash      = errors.New("insufficient cash")
	ErrInsufficientCapacity  = errors.New("insufficient coat capacity")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidWalletAddress  = errors.New("invalid wallet address")
	ErrInvalidGoodIndex      = errors.New("invalid good index")
	ErrInvalidLocation       = errors.New("invalid location")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidSessionConfig  = errors.New("invalid session config")
)

// DispatchError wraps a failure with the operation and a stable code.
type DispatchError struct {
	operation string
	code      string
	err       error
}

// Error returns the formatted error message.
func (dispatchError DispatchError) Error() string {
	return fmt.Sprintf("%s.%s: %v", dispatchError.operation, dispatchError.code, dispatchError.err)
}

// Unwrap returns the underlying error.
func (dispatchError DispatchError) Unwrap() error {
	return dispatchError.err
}

// Operation returns the operation segment.
func (dispatchError DispatchError) Operation() string {
	return dispatchError.operation
}

// Code returns the stable error code segment.
func (dispatchError DispatchError) Code() string {
	return dispatchError.code
}

// WrapError wraps an error with operation and code metadata.
func WrapError(operation string, code string, err error) error {
	if err == nil {
		return nil
	}
	return DispatchError{
		operation: operation,
		code:      code,
		err:       err,
	}
}
