package pop3

import "errors"

// The error kinds a caller can distinguish. Everything returned by this
// package wraps one of these sentinels or is a *ServerError, so callers
// can tell "the server said no" apart from "the conversation broke" with
// errors.Is and errors.As.
var (
	// ErrConnection covers transport failures: refused connections, TLS
	// negotiation failures, timeouts, and unexpected stream closure.
	ErrConnection = errors.New("pop3: connection error")

	// ErrProtocol means the byte stream violated the framing rules, for
	// example a reply without a status marker or a multi-line body that
	// ended without its terminator.
	ErrProtocol = errors.New("pop3: protocol error")

	// ErrFormat means a well-formed reply did not parse into the shape a
	// command promises, such as STAT's two integers.
	ErrFormat = errors.New("pop3: malformed reply")

	// ErrState means a command was attempted in a session state that
	// forbids it. The transport is never touched in that case.
	ErrState = errors.New("pop3: command not valid in session state")
)

// ServerError is a negative acknowledgement: transport and framing were
// fine, but the server answered -ERR. Message carries the server's text.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "pop3: server refused command"
	}
	return "pop3: server: " + e.Message
}
