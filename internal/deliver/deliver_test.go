package deliver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMessage = "From: sender@example.com\r\nSubject: Hello\r\n\r\nbody text\r\n"

func TestMaildirDeliver(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mail")
	m := NewMaildir(root)

	require.NoError(t, m.Deliver("personal", []byte(testMessage)))

	newDir := filepath.Join(root, "personal", "new")
	entries, err := os.ReadDir(newDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(newDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, testMessage, string(data))

	// tmp must be empty after a completed delivery.
	tmpEntries, err := os.ReadDir(filepath.Join(root, "personal", "tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmpEntries)
}

func TestMaildirDeliverTwice(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mail")
	m := NewMaildir(root)

	require.NoError(t, m.Deliver("personal", []byte(testMessage)))
	require.NoError(t, m.Deliver("personal", []byte(testMessage)))

	entries, err := os.ReadDir(filepath.Join(root, "personal", "new"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"personal", "personal"},
		{"alice@example.com", "alice@example.com"},
		{"work/inbox", "work_inbox"},
		{"host:110", "host_110"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, folderName(tt.input), "input %q", tt.input)
	}
}

func TestSMTPRewrite(t *testing.T) {
	f := NewSMTPForwarder("smtp.example.com", 587, "me@example.com", "secret", "archive@example.com")

	data, err := f.rewrite("personal", []byte(testMessage))
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "From: archive@example.com\r\n"))
	assert.Contains(t, out, "To: archive@example.com\r\n")
	assert.Contains(t, out, "X-Original-From: sender@example.com\r\n")
	assert.Contains(t, out, "Reply-To: sender@example.com\r\n")
	assert.Contains(t, out, "X-Popsync-Source: personal\r\n")
	assert.Contains(t, out, "Subject: Hello\r\n")
	assert.Contains(t, out, "\r\n\r\nbody text")
}

func TestSMTPRewriteKeepsReplyTo(t *testing.T) {
	f := NewSMTPForwarder("smtp.example.com", 587, "me@example.com", "secret", "archive@example.com")

	msg := "From: a@example.com\r\nReply-To: list@example.com\r\n\r\nhi\r\n"
	data, err := f.rewrite("personal", []byte(msg))
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "Reply-To: list@example.com\r\n")
	assert.NotContains(t, out, "Reply-To: a@example.com")
}

func TestSMTPRewriteUnparseable(t *testing.T) {
	f := NewSMTPForwarder("smtp.example.com", 587, "me@example.com", "secret", "archive@example.com")

	raw := []byte("this is not a mail message")
	data, err := f.rewrite("personal", raw)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "X-Popsync-Source: personal\r\n"))
	assert.Contains(t, out, "this is not a mail message")
}
