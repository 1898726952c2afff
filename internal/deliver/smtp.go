package deliver

import (
	"bytes"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
)

// SMTPForwarder delivers fetched messages by submitting them to an SMTP
// server, addressed to a single destination mailbox.
type SMTPForwarder struct {
	host     string
	port     int
	username string
	password string
	to       string
}

// NewSMTPForwarder creates a forwarder that submits through host:port
// with PLAIN authentication.
func NewSMTPForwarder(host string, port int, username, password, to string) *SMTPForwarder {
	return &SMTPForwarder{
		host:     host,
		port:     port,
		username: username,
		password: password,
		to:       to,
	}
}

// Deliver rewrites the envelope headers for submission and forwards the
// message.
func (s *SMTPForwarder) Deliver(account string, raw []byte) error {
	data, err := s.rewrite(account, raw)
	if err != nil {
		return err
	}
	return s.send(data)
}

// rewrite prepares a fetched message for submission. The submission
// server requires From to match the authenticated sender, so the
// original sender moves to Reply-To and X-Original-From.
func (s *SMTPForwarder) rewrite(account string, raw []byte) ([]byte, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		// Unparseable message: forward as-is with a provenance header.
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "X-Popsync-Source: %s\r\n", account)
		buf.Write(raw)
		return buf.Bytes(), nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.to)
	fmt.Fprintf(&buf, "To: %s\r\n", s.to)

	origFrom := msg.Header.Get("From")
	if origFrom != "" {
		fmt.Fprintf(&buf, "X-Original-From: %s\r\n", origFrom)
		if msg.Header.Get("Reply-To") == "" {
			fmt.Fprintf(&buf, "Reply-To: %s\r\n", origFrom)
		}
	}
	if origTo := msg.Header.Get("To"); origTo != "" {
		fmt.Fprintf(&buf, "X-Original-To: %s\r\n", origTo)
	}
	fmt.Fprintf(&buf, "X-Popsync-Source: %s\r\n", account)

	// Carry over everything else untouched.
	skipped := map[string]bool{"From": true, "To": true}
	for key, values := range msg.Header {
		if skipped[key] {
			continue
		}
		for _, v := range values {
			fmt.Fprintf(&buf, "%s: %s\r\n", key, v)
		}
	}
	fmt.Fprintf(&buf, "\r\n")

	if _, err := buf.ReadFrom(msg.Body); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}

	return buf.Bytes(), nil
}

// send submits the message bytes over SMTP.
func (s *SMTPForwarder) send(data []byte) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	if err := smtp.SendMail(addr, auth, s.to, []string{s.to}, data); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
