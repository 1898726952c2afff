// Package pop3 implements a POP3 client (RFC 1939) over plain TCP or TLS.
//
// The protocol is strict lock-step request/response: one command at a
// time, each blocking until its full reply (including a multi-line body)
// has been parsed. A Client provides no internal locking; callers must
// serialize access themselves.
package pop3

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default ports and idle timeout.
const (
	DefaultPort    = 110
	DefaultTLSPort = 995
	DefaultTimeout = 30 * time.Second
)

// TLS certificate verification modes accepted by Options.TLSVerify.
const (
	VerifyPeer = "verify-peer"
	NoVerify   = "no-verify"
)

// sessionState tracks the client's position in the protocol lifecycle.
// The session starts in Authorization once the greeting is read, moves to
// Transaction on a successful PASS, to Update when QUIT is sent, and ends
// in Closed when the transport is released.
type sessionState int

const (
	stateAuthorization sessionState = iota
	stateTransaction
	stateUpdate
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAuthorization:
		return "Authorization"
	case stateTransaction:
		return "Transaction"
	case stateUpdate:
		return "Update"
	case stateClosed:
		return "Closed"
	}
	return "Unknown"
}

// Options configures how Dial establishes a session.
type Options struct {
	// TLS wraps the connection in TLS. The default port becomes 995.
	TLS bool
	// TLSVerify selects certificate verification: VerifyPeer (the
	// default) or NoVerify. Ignored when TLSConfig is set.
	TLSVerify string
	// TLSConfig fully overrides the TLS configuration when non-nil.
	TLSConfig *tls.Config
	// Timeout bounds dialing and every subsequent read and write.
	// Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client is a POP3 session bound to a single connection. It owns the
// transport exclusively: the connection is closed exactly once, on Quit,
// on Close, or when the greeting turns out to be malformed.
type Client struct {
	host   string
	port   int
	lc     *lineConn
	banner string
	state  sessionState
}

// Dial connects to host:port and reads the server greeting. A port of 0
// selects the protocol default for the chosen transport. The returned
// Client is in the Authorization state with the greeting banner recorded.
func Dial(host string, port int, opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if port == 0 {
		if opts.TLS {
			port = DefaultTLSPort
		} else {
			port = DefaultPort
		}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if opts.TLS {
		cfg := opts.TLSConfig
		if cfg == nil {
			cfg, err = tlsConfigFor(opts.TLSVerify, host)
			if err != nil {
				return nil, err
			}
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, cfg)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	c, err := NewClient(conn, timeout)
	if err != nil {
		return nil, err
	}
	c.host = host
	c.port = port
	return c, nil
}

// tlsConfigFor builds the TLS configuration for a verification mode. An
// unknown mode fails before any network I/O happens.
func tlsConfigFor(mode, host string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}
	switch mode {
	case "", VerifyPeer:
	case NoVerify:
		cfg.InsecureSkipVerify = true
	default:
		return nil, fmt.Errorf("%w: unknown TLS verification mode %q", ErrConnection, mode)
	}
	return cfg, nil
}

// NewClient builds a Client over an already-established connection and
// reads the greeting. On a malformed greeting the connection is closed
// before returning; no partially-initialized Client escapes.
func NewClient(conn net.Conn, timeout time.Duration) (*Client, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		lc:    newLineConn(conn, timeout),
		state: stateAuthorization,
	}

	greeting, err := readStatus(c.lc)
	if err != nil {
		conn.Close()
		if _, ok := err.(*ServerError); ok {
			return nil, fmt.Errorf("%w: server rejected connection in greeting", ErrProtocol)
		}
		return nil, fmt.Errorf("reading greeting: %w", err)
	}

	c.banner = greeting.Status
	return c, nil
}

// Banner returns the greeting line's text, as sent by the server at
// connect time. Digest-style authentication schemes derive their
// challenge from it.
func (c *Client) Banner() string {
	return c.banner
}

// User sends the USER command. Valid only during Authorization.
func (c *Client) User(name string) (*Response, error) {
	if err := c.requireState("USER", stateAuthorization); err != nil {
		return nil, err
	}
	return c.shortCmd("USER", name)
}

// Pass sends the PASS command; on success the session enters the
// Transaction state. Valid only during Authorization.
func (c *Client) Pass(password string) (*Response, error) {
	if err := c.requireState("PASS", stateAuthorization); err != nil {
		return nil, err
	}
	resp, err := c.shortCmd("PASS", password)
	if err != nil {
		return nil, err
	}
	c.state = stateTransaction
	return resp, nil
}

// Login authenticates with USER/PASS.
func (c *Client) Login(user, pass string) error {
	if _, err := c.User(user); err != nil {
		return fmt.Errorf("pop3 USER: %w", err)
	}
	if _, err := c.Pass(pass); err != nil {
		return fmt.Errorf("pop3 PASS: %w", err)
	}
	return nil
}

// Stat reports the number of messages in the maildrop and their total
// size in octets.
func (c *Client) Stat() (count, size int, err error) {
	if err := c.requireState("STAT", stateTransaction); err != nil {
		return 0, 0, err
	}
	resp, err := c.shortCmd("STAT")
	if err != nil {
		return 0, 0, fmt.Errorf("pop3 STAT: %w", err)
	}

	fields := strings.Fields(resp.Status)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: STAT reply %q: want two integers", ErrFormat, resp.Status)
	}
	count, err = strconv.Atoi(fields[0])
	if err != nil || count < 0 {
		return 0, 0, fmt.Errorf("%w: STAT message count %q", ErrFormat, fields[0])
	}
	size, err = strconv.Atoi(fields[1])
	if err != nil || size < 0 {
		return 0, 0, fmt.Errorf("%w: STAT maildrop size %q", ErrFormat, fields[1])
	}
	return count, size, nil
}

// List retrieves the scan listing for every message.
func (c *Client) List() (*Response, error) {
	if err := c.requireState("LIST", stateTransaction); err != nil {
		return nil, err
	}
	return c.longCmd("LIST")
}

// ListMessage retrieves the scan listing for a single message.
func (c *Client) ListMessage(msgNum int) (*Response, error) {
	if err := c.requireState("LIST", stateTransaction); err != nil {
		return nil, err
	}
	return c.shortCmd("LIST", strconv.Itoa(msgNum))
}

// Retr fetches a message in full. The body lines are already unstuffed.
func (c *Client) Retr(msgNum int) (*Response, error) {
	if err := c.requireState("RETR", stateTransaction); err != nil {
		return nil, err
	}
	return c.longCmd("RETR", strconv.Itoa(msgNum))
}

// Retrieve fetches a message and reassembles it into raw bytes with CRLF
// line endings, headers and body together.
func (c *Client) Retrieve(msgNum int) ([]byte, error) {
	resp, err := c.Retr(msgNum)
	if err != nil {
		return nil, fmt.Errorf("pop3 RETR %d: %w", msgNum, err)
	}
	return resp.Raw(), nil
}

// Dele marks a message for deletion. The server removes it only after a
// successful QUIT.
func (c *Client) Dele(msgNum int) (*Response, error) {
	if err := c.requireState("DELE", stateTransaction); err != nil {
		return nil, err
	}
	return c.shortCmd("DELE", strconv.Itoa(msgNum))
}

// Noop does nothing on the server but confirms the session is alive.
func (c *Client) Noop() (*Response, error) {
	if err := c.requireState("NOOP", stateTransaction); err != nil {
		return nil, err
	}
	return c.shortCmd("NOOP")
}

// Rset unmarks every message marked for deletion in this session.
func (c *Client) Rset() (*Response, error) {
	if err := c.requireState("RSET", stateTransaction); err != nil {
		return nil, err
	}
	return c.shortCmd("RSET")
}

// Top fetches the headers of a message plus at most maxLines lines of its
// body.
func (c *Client) Top(msgNum, maxLines int) (*Response, error) {
	if err := c.requireState("TOP", stateTransaction); err != nil {
		return nil, err
	}
	return c.longCmd("TOP", strconv.Itoa(msgNum), strconv.Itoa(maxLines))
}

// Uidl retrieves the unique-id listing for every message.
func (c *Client) Uidl() (*Response, error) {
	if err := c.requireState("UIDL", stateTransaction); err != nil {
		return nil, err
	}
	return c.longCmd("UIDL")
}

// UidlMessage retrieves the unique-id listing for a single message.
func (c *Client) UidlMessage(msgNum int) (*Response, error) {
	if err := c.requireState("UIDL", stateTransaction); err != nil {
		return nil, err
	}
	return c.shortCmd("UIDL", strconv.Itoa(msgNum))
}

// UIDList maps message numbers to their UIDs for all messages. Listing
// lines that do not parse are skipped.
func (c *Client) UIDList() (map[int]string, error) {
	resp, err := c.Uidl()
	if err != nil {
		return nil, fmt.Errorf("pop3 UIDL: %w", err)
	}

	result := make(map[int]string, len(resp.Body))
	for _, line := range resp.Body {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		num, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		result[num] = parts[1]
	}
	return result, nil
}

// Capa lists the capabilities the server advertises. Valid both before
// and after authentication.
func (c *Client) Capa() ([]string, error) {
	if err := c.requireState("CAPA", stateAuthorization, stateTransaction); err != nil {
		return nil, err
	}
	resp, err := c.longCmd("CAPA")
	if err != nil {
		return nil, fmt.Errorf("pop3 CAPA: %w", err)
	}
	return resp.Body, nil
}

// Quit ends the session. On +OK the server commits pending deletions. The
// transport is closed exactly once whatever the exchange's outcome, so
// Quit is safe to defer right after a successful Dial.
func (c *Client) Quit() error {
	if err := c.requireState("QUIT", stateAuthorization, stateTransaction); err != nil {
		return err
	}

	c.state = stateUpdate
	_, cmdErr := c.shortCmd("QUIT")
	closeErr := c.lc.close()
	c.state = stateClosed

	if cmdErr != nil {
		return fmt.Errorf("pop3 QUIT: %w", cmdErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing connection: %v", ErrConnection, closeErr)
	}
	return nil
}

// Close releases the transport without sending QUIT; the server discards
// pending deletions. Calling Close on an already-closed Client is a
// no-op.
func (c *Client) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return c.lc.close()
}

// shortCmd sends a command and parses its single-line reply.
func (c *Client) shortCmd(verb string, args ...string) (*Response, error) {
	if err := c.send(verb, args); err != nil {
		return nil, err
	}
	return readStatus(c.lc)
}

// longCmd sends a command and parses its multi-line reply.
func (c *Client) longCmd(verb string, args ...string) (*Response, error) {
	if err := c.send(verb, args); err != nil {
		return nil, err
	}
	return readMultiLine(c.lc)
}

// send writes "VERB arg1 arg2" followed by CRLF. CR and LF are stripped
// from arguments so a hostile username or password cannot smuggle in a
// second command.
func (c *Client) send(verb string, args []string) error {
	line := verb
	for _, arg := range args {
		line += " " + sanitizeCRLF(arg)
	}
	return c.lc.writeLine(line)
}

func sanitizeCRLF(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// requireState fails fast with ErrState when the session is not in one of
// the allowed states. A Closed session never touches the transport again.
func (c *Client) requireState(verb string, allowed ...sessionState) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", ErrState, verb, c.state)
}
