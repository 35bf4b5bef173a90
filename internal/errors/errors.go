package errors

import "errors"

// Session errors.
var (
	ErrNoIdentity    = errors.New("no persisted identity")
	ErrNotConnected  = errors.New("session is not connected")
	ErrSessionActive = errors.New("a session is already active for this identity")
)

// Transport errors.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrDialFailed      = errors.New("dialing transport failed")
)
