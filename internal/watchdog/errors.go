package watchdog

import "github.com/pkg/errors"

var (
	ErrSessionNotReady = errors.New("session not ready")
	ErrCommandRejected = errors.New("command rejected by server")
	ErrNoMatch         = errors.New("no match found")
	ErrUnknownServer   = errors.New("unknown server")
	ErrInvalidConfig   = errors.New("invalid config")
	errNoFleet         = errors.New("global punishments are not available")
)
