// Package backup exports and restores a complete ledger store as an
// lzma-compressed badger backup stream.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz/lzma"

	"github.com/neonsphere/weave/internal/kvstore"
)

var magic = []byte("WEAVEBK1")

var (
	ErrInProgress = errors.New("backup: another backup or restore is running")
	ErrNotEmpty   = errors.New("backup: restore target is not empty")
	ErrBadFormat  = errors.New("backup: not a weave backup stream")
)

// Status describes the most recent backup run.
type Status struct {
	LastBackup     time.Time
	LastBackupSize int64
	InProgress     bool
}

type Manager struct {
	kv  *kvstore.KeyValStore
	log *logrus.Logger

	mu     sync.Mutex
	status Status
}

func NewManager(kv *kvstore.KeyValStore, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{kv: kv, log: log}
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.InProgress {
		return ErrInProgress
	}
	m.status.InProgress = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.status.InProgress = false
	m.mu.Unlock()
}

// Export writes the whole store to w.
func (m *Manager) Export(
	ctx context.Context,
	w io.Writer,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	cw := &countingWriter{w: w}
	if _, err := cw.Write(magic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lw, err := lzma.NewWriter(cw)
	if err != nil {
		return fmt.Errorf("create lzma writer: %w", err)
	}
	if err := m.kv.Backup(lw); err != nil {
		return errors.Join(fmt.Errorf("stream store: %w", err), lw.Close())
	}
	if err := lw.Close(); err != nil {
		return fmt.Errorf("close lzma writer: %w", err)
	}

	m.mu.Lock()
	m.status.LastBackup = time.Now()
	m.status.LastBackupSize = cw.n
	m.mu.Unlock()
	m.log.WithField("bytes", cw.n).Info("backup written")
	return nil
}

// Import restores a stream produced by Export. The store must be empty.
func (m *Manager) Import(
	ctx context.Context,
	r io.Reader,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	empty, err := m.kv.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return ErrNotEmpty
	}

	br := bufio.NewReader(r)
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil || !bytes.Equal(head, magic) {
		return ErrBadFormat
	}
	lr, err := lzma.NewReader(br)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadFormat, err)
	}
	if err := m.kv.Load(lr); err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	m.log.Info("backup restored")
	return nil
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
