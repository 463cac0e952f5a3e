package game

import "time"

// surfacedError is the single-slot user-facing error. A new error overwrites
// an old one still displayed; expiry is evaluated at read time against the
// session clock.
type surfacedError struct {
	message   string
	context   string
	expiresAt time.Time
}

func (session *Session) showErrorLocked(message string, errorContext string) {
	session.currentError = &surfacedError{
		message:   message,
		context:   errorContext,
		expiresAt: session.nowFn().Add(session.errorTTL),
	}
}

func (session *Session) showError(message string, errorContext string) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.showErrorLocked(message, errorContext)
}

// CurrentError returns the current user-facing error message and the
// operation context it came from. ok is false once the message expired.
func (session *Session) CurrentError() (message string, errorContext string, ok bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.currentError == nil {
		return "", "", false
	}
	if !session.nowFn().Before(session.currentError.expiresAt) {
		session.currentError = nil
		return "", "", false
	}
	return session.currentError.message, session.currentError.context, true
}
