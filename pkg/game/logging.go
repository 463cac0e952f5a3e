package game

import (
	"context"
	"time"
)

// SessionOption configures a Session instance.
type SessionOption func(*Session)

// OperationLogger records domain-level events emitted by session operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one dispatched session operation.
type OperationLog struct {
	Operation string
	Player    WalletAddress
	Action    ActionName
	Detail    string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every
// operation.
func WithOperationLogger(logger OperationLogger) SessionOption {
	return func(session *Session) {
		session.logger = logger
	}
}

// WithClock overrides the session clock.
func WithClock(now func() time.Time) SessionOption {
	return func(session *Session) {
		session.nowFn = now
	}
}

// WithReconcileDelay sets how long an optimistic trade stays pending before
// the reconciling refresh. Zero reconciles immediately.
func WithReconcileDelay(delay time.Duration) SessionOption {
	return func(session *Session) {
		session.reconcileDelay = delay
	}
}

// WithTrailingRefreshDelay sets the defensive refresh scheduled after a
// blocking action completes. Zero disables it.
func WithTrailingRefreshDelay(delay time.Duration) SessionOption {
	return func(session *Session) {
		session.trailingRefreshDelay = delay
	}
}

// WithErrorTTL sets how long a surfaced error stays readable.
func WithErrorTTL(ttl time.Duration) SessionOption {
	return func(session *Session) {
		session.errorTTL = ttl
	}
}

// WithConfirmTimeout bounds the wait for on-chain settlement confirmation.
func WithConfirmTimeout(timeout time.Duration) SessionOption {
	return func(session *Session) {
		session.confirmTimeout = timeout
	}
}
