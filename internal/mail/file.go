package mail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// FileMailer writes every message to its own file in a directory, in a
// format close to what an SMTP server would receive. Nothing is sent.
type FileMailer struct {
	dir  string
	from string
	now  func() time.Time
	seq  atomic.Uint64
}

// NewFileMailer creates dir if needed.
func NewFileMailer(dir, from string) (*FileMailer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mail: creating %s: %w", dir, err)
	}
	return &FileMailer{dir: dir, from: from, now: time.Now}, nil
}

// Send implements Mailer. Files are named <timestamp>-<n>.log so a
// directory listing shows them in sending order.
func (m *FileMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=\"utf-8\"\n")
	fmt.Fprintf(&buf, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&buf, "From: %s\n", m.from)
	fmt.Fprintf(&buf, "To: %s\n", msg.To)
	fmt.Fprintf(&buf, "Date: %s\n", now.Format(time.RFC1123Z))
	buf.WriteString("\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\n")

	name := fmt.Sprintf("%s-%d.log", now.Format("20060102-150405"), m.seq.Add(1))
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("mail: writing %s: %w", path, err)
	}
	return nil
}
