package client

import "errors"

var (
	ErrServerDown       = errors.New("no connection could be made because the target machine actively refused it")
	ErrServerValidation = errors.New("server validation error")
	ErrUnauthorized     = errors.New("invalid credentials")
	ErrApplication      = errors.New("internal application error")
	// ErrNotConnected is returned instead of queueing, a send while the
	// event channel is down fails fast and keeps the draft intact.
	ErrNotConnected = errors.New("not connected to the chat server")
	ErrAckTimeout   = errors.New("server did not acknowledge the message in time")
)

func getMostNestedError(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
