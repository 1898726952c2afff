// Package deliver stores fetched messages in a local maildir or forwards
// them to another mailbox over SMTP.
package deliver

// A Deliverer accepts one raw message (headers and body, CRLF line
// endings) fetched from the named account. A message is either fully
// delivered or not delivered at all; partial deliveries never become
// visible.
type Deliverer interface {
	Deliver(account string, raw []byte) error
}
