package errors

import (
	"errors"
	"fmt"
)

// Sync errors - these represent failures of the realtime layer
var (
	// Connection lifecycle
	ErrAuthentication       = errors.New("no credential available")
	ErrAuthRejected         = errors.New("credential rejected by server")
	ErrConnectionTimeout    = errors.New("connection handshake timed out")
	ErrReconnectExhausted   = errors.New("reconnection attempts exhausted")
	ErrNotConnected         = errors.New("not connected")
	ErrTransportClosed      = errors.New("transport closed")
	ErrAckUnsupported       = errors.New("transport does not support acknowledgements")
	ErrInvalidConfig        = errors.New("invalid connection config")
	ErrUnsupportedEvent     = errors.New("unsupported event")
	ErrMalformedPayload     = errors.New("malformed event payload")
	ErrRoomOperationIgnored = errors.New("room operation ignored while disconnected")

	// Ticket list
	ErrTicketNotFound = errors.New("ticket not found")
	ErrFetchFailed    = errors.New("ticket fetch failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// SyncError wraps errors with the operation that produced them
type SyncError struct {
	Op   string // Operation that failed, e.g. "dial" or "join-ticket-room"
	Code string // Machine-readable error code
	Err  error  // The underlying error
}

func (e *SyncError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewAuthenticationError(cause error) *SyncError {
	err := ErrAuthentication
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrAuthentication, cause)
	}
	return &SyncError{Op: "connect", Code: "AUTHENTICATION", Err: err}
}

func NewTimeoutError(op string, cause error) *SyncError {
	return &SyncError{
		Op:   op,
		Code: "CONNECTION_TIMEOUT",
		Err:  fmt.Errorf("%w: %w", ErrConnectionTimeout, cause),
	}
}

func NewReconnectExhaustedError(attempts int, last error) *SyncError {
	err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts)
	if last != nil {
		err = fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempts, last)
	}
	return &SyncError{Op: "reconnect", Code: "RECONNECT_EXHAUSTED", Err: err}
}

func NewTransportError(op string, err error) *SyncError {
	return &SyncError{Op: op, Code: "TRANSPORT", Err: err}
}

func NewFetchError(status int, message string) *SyncError {
	return &SyncError{
		Op:   "fetch-tickets",
		Code: "FETCH_FAILED",
		Err:  fmt.Errorf("%w: status %d: %s", ErrFetchFailed, status, message),
	}
}

// Code returns the machine-readable code of err, or "INTERNAL_ERROR".
func Code(err error) string {
	var se *SyncError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	return "INTERNAL_ERROR"
}

// IsConnectionError reports whether err came from the connection lifecycle.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrAuthRejected)
}
