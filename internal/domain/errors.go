package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy for bridge operations. Request handlers map these to
// status codes with errors.Is / errors.As; nothing else inspects error
// strings.
var (
	// ErrNotConnected gates every operation that needs a live session.
	// Recoverable by the caller reconnecting.
	ErrNotConnected = errors.New("not connected to terminal")

	// ErrSymbolNotFound: the trade or quote referenced an unknown symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrPositionNotFound: close request for a ticket that is not open.
	ErrPositionNotFound = errors.New("position not found")

	// ErrInvalidRequest: the request failed validation before touching
	// the terminal.
	ErrInvalidRequest = errors.New("invalid request")
)

// ConnectError wraps a terminal init/login failure. The underlying
// reason is surfaced verbatim and the connection stays down; the bridge
// never retries on its own.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "connect failed: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// TradeRejectedError carries the venue's non-success return code and
// comment. Trade intents are not safe to auto-retry, so this is always
// surfaced to the caller as-is.
type TradeRejectedError struct {
	Retcode uint32
	Comment string
}

func (e *TradeRejectedError) Error() string {
	return fmt.Sprintf("trade rejected (retcode %d): %s", e.Retcode, e.Comment)
}
