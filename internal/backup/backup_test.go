package backup

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonsphere/weave/internal/kvstore"
)

func newStore(t *testing.T) *kvstore.KeyValStore {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	kv, err := kvstore.NewKeyValStore(kvstore.StoreConfig{InMemory: true, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newStore(t)
	require.NoError(t, src.Update(func(txn *kvstore.Txn) error {
		for _, k := range []string{"u/1", "u/2", "c/1"} {
			if err := txn.Set([]byte(k), []byte("value-"+k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var buf bytes.Buffer
	m := NewManager(src, quiet())
	require.NoError(t, m.Export(context.Background(), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), magic))

	st := m.Status()
	assert.False(t, st.InProgress)
	assert.Equal(t, int64(buf.Len()), st.LastBackupSize)
	assert.False(t, st.LastBackup.IsZero())

	dst := newStore(t)
	require.NoError(t, NewManager(dst, quiet()).Import(context.Background(), &buf))
	require.NoError(t, dst.View(func(txn *kvstore.Txn) error {
		n, err := txn.CountPrefix([]byte("u/"))
		assert.Equal(t, 2, n)
		v, _ := txn.Get([]byte("c/1"))
		assert.Equal(t, []byte("value-c/1"), v)
		return err
	}))
}

func TestImportRejectsNonEmptyStore(t *testing.T) {
	src := newStore(t)
	var buf bytes.Buffer
	require.NoError(t, NewManager(src, quiet()).Export(context.Background(), &buf))

	dst := newStore(t)
	require.NoError(t, dst.Update(func(txn *kvstore.Txn) error {
		return txn.Set([]byte("x"), []byte("y"))
	}))
	err := NewManager(dst, quiet()).Import(context.Background(), &buf)
	require.ErrorIs(t, err, ErrNotEmpty)
}

func TestImportRejectsForeignStream(t *testing.T) {
	dst := newStore(t)
	err := NewManager(dst, quiet()).Import(context.Background(), bytes.NewReader([]byte("not a backup")))
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestExportHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewManager(newStore(t), quiet()).Export(ctx, io.Discard)
	require.ErrorIs(t, err, context.Canceled)
}
