package pop3

import (
	"fmt"
	"io"
	"strings"
)

// Reply status markers.
const (
	okMarker  = "+OK"
	errMarker = "-ERR"
)

// terminator ends a multi-line reply when it appears alone on a line.
const terminator = "."

// Response is a parsed server reply. Status is the text following the +OK
// marker with surrounding whitespace trimmed. Body holds the lines of a
// multi-line reply, already unstuffed and without the terminator line; it
// is nil for single-line replies.
type Response struct {
	Status string
	Body   []string
}

// Raw reassembles a multi-line body into the original byte stream with
// CRLF line endings, as it was on the wire before unstuffing.
func (r *Response) Raw() []byte {
	var b strings.Builder
	for _, line := range r.Body {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// parseStatusLine classifies a single reply line. A -ERR line becomes a
// *ServerError carrying the server's message; a line starting with
// neither marker violates framing.
func parseStatusLine(line string) (*Response, error) {
	switch {
	case strings.HasPrefix(line, okMarker):
		return &Response{Status: strings.TrimSpace(line[len(okMarker):])}, nil
	case strings.HasPrefix(line, errMarker):
		return nil, &ServerError{Message: strings.TrimSpace(line[len(errMarker):])}
	case line == "":
		return nil, fmt.Errorf("%w: empty line where a status line was expected", ErrProtocol)
	default:
		return nil, fmt.Errorf("%w: reply %q has no status marker", ErrProtocol, line)
	}
}

// readStatus reads and parses one single-line reply.
func readStatus(lc *lineConn) (*Response, error) {
	line, err := lc.readLine()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: server closed connection", ErrConnection)
		}
		return nil, err
	}
	return parseStatusLine(line)
}

// readMultiLine reads a status line and, on success, the dot-terminated
// body that follows. The terminator is recognized only when a line is
// exactly one dot with nothing else; a line beginning with two dots was
// stuffed by the server and loses its first character. An end of stream
// before the terminator means the reply was truncated mid-body.
func readMultiLine(lc *lineConn) (*Response, error) {
	resp, err := readStatus(lc)
	if err != nil {
		return nil, err
	}

	for {
		line, err := lc.readLine()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: unexpected end of stream", ErrProtocol)
			}
			return nil, err
		}

		if line == terminator {
			return resp, nil
		}
		if strings.HasPrefix(line, terminator+terminator) {
			line = line[1:]
		}
		resp.Body = append(resp.Body, line)
	}
}
