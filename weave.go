// Package weave is an encrypted social-graph ledger: users with
// ciphertext reputations, trust connections between them and an
// append-only interaction log, persisted in an embedded badger store.
package weave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/internal/backup"
	"github.com/neonsphere/weave/internal/config"
	"github.com/neonsphere/weave/internal/contract"
	"github.com/neonsphere/weave/internal/kvstore"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/content"
	"github.com/neonsphere/weave/pkg/ledger"
	"github.com/neonsphere/weave/pkg/notify"
)

var (
	ErrNotStarted = errors.New("weave: not started")
	ErrClosed     = errors.New("weave: closed")
)

// Config is the YAML-backed configuration; see LoadConfig.
type Config = config.Config

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() Config { return config.Default() }

// Weave owns the store and every component built on it.
type Weave struct {
	log    *logrus.Logger
	config Config

	kv         *kvstore.KeyValStore
	ledger     *ledger.SocialLedger
	content    *content.Store
	backup     *backup.Manager
	dispatcher *contract.Dispatcher
	publisher  *notify.AMQPPublisher
	unsub      []func()

	stopGC context.CancelFunc
	gcDone chan struct{}

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	startErr  error
	closeOnce sync.Once
}

// New validates conf and returns an unstarted handle. A nil log gets a
// stderr logger at the configured level.
func New(conf Config, log *logrus.Logger) (*Weave, error) { // A
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !conf.InMemory && conf.DataDir == "" {
		return nil, errors.New("a data directory is required unless inMemory is set")
	}
	if log == nil {
		log = logrus.New()
		log.SetLevel(conf.Level())
	}
	return &Weave{log: log, config: conf}, nil
}

func (w *Weave) verifier() cipher.Verifier { // A
	if w.config.Verifier.Mode == config.VerifierOpen {
		w.log.Warn("open verifier: every well-formed proof is accepted")
		return cipher.VerifierFunc(func(ctx context.Context, _ cipher.Handle, _ cipher.Proof) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, errors.Join(cipher.ErrUnavailable, err)
			}
			return true, nil
		})
	}
	return cipher.NewKeccakVerifier(w.config.Verifier.Domain)
}

// Start opens the store and wires the ledger, the content store, the
// event sinks and the background value-log GC. Only the first call has
// effect; later calls return its error.
func (w *Weave) Start(ctx context.Context) error { // A
	if w.closed.Load() {
		return ErrClosed
	}
	w.startOnce.Do(func() {
		if err := w.start(ctx); err != nil {
			w.startErr = errors.Join(err, w.release())
			return
		}
		w.started.Store(true)
		w.log.WithFields(logrus.Fields{
			"dataDir":  w.config.DataDir,
			"inMemory": w.config.InMemory,
		}).Info("weave started")
	})
	return w.startErr
}

func (w *Weave) start(ctx context.Context) error { // A
	storeConf := kvstore.StoreConfig{
		InMemory:         w.config.InMemory,
		MinimumFreeSpace: w.config.MinimumFreeGB,
		Logger:           w.log,
	}
	if !w.config.InMemory {
		if err := os.MkdirAll(w.config.DataDir, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", w.config.DataDir, err)
		}
		storeConf.Paths = []string{w.config.DataDir}
	}
	kv, err := kvstore.NewKeyValStore(storeConf)
	if err != nil {
		return fmt.Errorf("init kv: %w", err)
	}
	w.kv = kv

	w.content = content.New(kv, content.Config{
		ChunkSize: int64(w.config.Content.ChunkSize),
		Rabin:     w.config.Content.Rabin,
		Logger:    w.log,
	})

	opts := ledger.Options{
		Verifier: w.verifier(),
		Logger:   w.log,
		Limits: ledger.Limits{
			MaxUsernameLen:    w.config.Limits.MaxUsernameLen,
			MaxBioLen:         w.config.Limits.MaxBioLen,
			MaxContentHashLen: w.config.Limits.MaxContentHashLen,
		},
	}
	if w.config.RequireKnownContent {
		opts.Content = w.content
	}
	w.ledger, err = ledger.New(kv, opts)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	w.unsub = append(w.unsub, w.ledger.Subscribe(notify.LogSink{Log: w.log}))
	if w.config.AMQP.URL != "" {
		p, err := notify.DialAMQP(ctx, notify.AMQPConfig{
			URL:        w.config.AMQP.URL,
			Exchange:   w.config.AMQP.Exchange,
			RoutingKey: w.config.AMQP.RoutingKey,
		}, w.log)
		if err != nil {
			return fmt.Errorf("init amqp publisher: %w", err)
		}
		w.publisher = p
		w.unsub = append(w.unsub, w.ledger.Subscribe(p))
	}

	w.dispatcher, err = contract.NewDispatcher(w.ledger, w.log)
	if err != nil {
		return err
	}
	w.backup = backup.NewManager(kv, w.log)

	if !w.config.InMemory && w.config.GCInterval > 0 {
		gcCtx, cancel := context.WithCancel(context.Background())
		w.stopGC = cancel
		w.gcDone = make(chan struct{})
		go w.garbageCollection(gcCtx, w.config.GCInterval)
	}
	return ctx.Err()
}

func (w *Weave) garbageCollection(ctx context.Context, every time.Duration) { // A
	defer close(w.gcDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.kv.Clean(); err != nil {
				w.log.WithError(err).Warn("garbage collection failed")
			}
		}
	}
}

// Run starts the handle, blocks until ctx is canceled and then closes.
func (w *Weave) Run(ctx context.Context) error { // A
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Close()
}

// Close stops background work and releases the store. Close is
// idempotent.
func (w *Weave) Close() error { // A
	var closeErr error
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.started.Store(false)
		closeErr = w.release()
		if closeErr == nil {
			w.log.Info("weave closed")
		}
	})
	return closeErr
}

func (w *Weave) release() error { // A
	var err error
	if w.stopGC != nil {
		w.stopGC()
		<-w.gcDone
		w.stopGC = nil
	}
	for _, u := range w.unsub {
		u()
	}
	w.unsub = nil
	if w.publisher != nil {
		if e := w.publisher.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("close amqp publisher: %w", e))
		}
		w.publisher = nil
	}
	if w.kv != nil {
		if e := w.kv.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("close kv: %w", e))
		}
		w.kv = nil
	}
	return err
}

func (w *Weave) ready() error { // A
	if w.closed.Load() {
		return ErrClosed
	}
	if !w.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// Ledger returns the social ledger, or nil before Start.
func (w *Weave) Ledger() *ledger.SocialLedger { // A
	if w.ready() != nil {
		return nil
	}
	return w.ledger
}

// Content returns the content store, or nil before Start.
func (w *Weave) Content() *content.Store { // A
	if w.ready() != nil {
		return nil
	}
	return w.content
}

// Dispatcher returns the ABI call dispatcher, or nil before Start.
func (w *Weave) Dispatcher() *contract.Dispatcher { // A
	if w.ready() != nil {
		return nil
	}
	return w.dispatcher
}

// Export writes a compressed snapshot of the whole store to out.
func (w *Weave) Export(ctx context.Context, out io.Writer) error { // A
	if err := w.ready(); err != nil {
		return err
	}
	return w.backup.Export(ctx, out)
}

// Import restores a snapshot into an empty store. Ledger writes wait
// until the restore has finished.
func (w *Weave) Import(ctx context.Context, in io.Reader) error { // A
	if err := w.ready(); err != nil {
		return err
	}
	return w.ledger.Exclusive(ctx, func() error {
		return w.backup.Import(ctx, in)
	})
}
