package pop3

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// lineConn is the CRLF line channel the protocol engine talks through.
// Every read and write carries the session's idle timeout as a deadline;
// exceeding it surfaces as ErrConnection like any other transport fault.
type lineConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

func newLineConn(conn net.Conn, timeout time.Duration) *lineConn {
	return &lineConn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}
}

// readLine returns the next line with its CRLF terminator stripped. A
// clean end of stream is reported as io.EOF so callers can decide whether
// it was a connection fault or a framing fault; every other failure is
// wrapped in ErrConnection.
func (lc *lineConn) readLine() (string, error) {
	if err := lc.conn.SetReadDeadline(time.Now().Add(lc.timeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	line, err := lc.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// writeLine sends one line followed by CRLF.
func (lc *lineConn) writeLine(line string) error {
	if err := lc.conn.SetWriteDeadline(time.Now().Add(lc.timeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if _, err := fmt.Fprintf(lc.conn, "%s\r\n", line); err != nil {
		return fmt.Errorf("%w: sending command: %v", ErrConnection, err)
	}
	return nil
}

func (lc *lineConn) close() error {
	return lc.conn.Close()
}
