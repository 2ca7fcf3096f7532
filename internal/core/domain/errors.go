package domain

import "errors"

var (
	ErrAppNotFound       = errors.New("app not found")
	ErrClientNotFound    = errors.New("client not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrDuplicateClient   = errors.New("client certificate already paired")
	ErrDuplicateSession  = errors.New("session id already active")
	ErrUnknownRunnerType = errors.New("unknown runner type")
	ErrSessionStopped    = errors.New("session already stopped")
	ErrPairingAborted    = errors.New("pairing attempt aborted")
)
