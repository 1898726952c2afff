package deliver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/numbleroot/maildir"
)

// Maildir delivers messages into per-account maildir folders under a
// common root directory.
type Maildir struct {
	root string
}

// NewMaildir returns a Maildir rooted at the given directory. Folders are
// created on first delivery.
func NewMaildir(root string) *Maildir {
	return &Maildir{root: root}
}

// Deliver writes the message to <root>/<account>/new through the usual
// tmp-then-link maildir sequence, so readers never observe a partial
// message.
func (m *Maildir) Deliver(account string, raw []byte) error {
	if err := os.MkdirAll(m.root, 0700); err != nil {
		return fmt.Errorf("creating maildir root %s: %w", m.root, err)
	}

	dir := maildir.Dir(filepath.Join(m.root, folderName(account)))
	if err := dir.Create(); err != nil && !os.IsExist(err) {
		return fmt.Errorf("creating maildir %s: %w", string(dir), err)
	}

	del, err := dir.NewDelivery()
	if err != nil {
		return fmt.Errorf("starting maildir delivery: %w", err)
	}
	if err := del.Write(raw); err != nil {
		del.Abort()
		return fmt.Errorf("writing message: %w", err)
	}
	if _, err := del.Close(); err != nil {
		return fmt.Errorf("finishing maildir delivery: %w", err)
	}
	return nil
}

// folderName makes an account label safe to use as a directory name.
func folderName(account string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, account)
}
