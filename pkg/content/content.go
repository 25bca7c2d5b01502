// Package content is a content-addressed blob store. Blobs are split
// into chunks, each chunk is stored once under its SHA3-256 digest and
// a manifest lists the chunks in order. The manifest digest is the
// content hash interactions reference.
package content

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"github.com/neonsphere/weave/internal/chunker"
	"github.com/neonsphere/weave/internal/kvstore"
)

const hashPrefix = "sha3-256:"

var (
	ErrNotFound    = errors.New("content: not found")
	ErrEmpty       = errors.New("content: empty blob")
	ErrInvalidHash = errors.New("content: invalid content hash")
)

var (
	prefixChunk    = []byte("b/")
	prefixManifest = []byte("m/")
)

type Config struct {
	// ChunkSize is the fixed or average chunk size in bytes.
	ChunkSize int64
	// Rabin selects content-defined chunking instead of fixed-size.
	Rabin  bool
	Logger *logrus.Logger
}

type Store struct {
	kv     *kvstore.KeyValStore
	config Config
	log    *logrus.Logger
}

func New(kv *kvstore.KeyValStore, config Config) *Store {
	if config.ChunkSize <= 0 {
		config.ChunkSize = chunker.DefaultSize
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Store{kv: kv, config: config, log: config.Logger}
}

// Put stores everything read from r and returns its content hash.
// Chunks are written one transaction each; the manifest is written
// last, so a hash is only resolvable once all its chunks exist.
func (s *Store) Put(ctx context.Context, r io.Reader) (string, error) {
	split := chunker.New(r, s.config.ChunkSize, s.config.Rabin)

	var (
		manifest = make([]byte, 8)
		total    uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := split.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("split content: %w", err)
		}
		digest := sha3.Sum256(chunk)
		if err := s.kv.Update(func(txn *kvstore.Txn) error {
			k := chunkKey(digest)
			exists, err := txn.Has(k)
			if err != nil || exists {
				return err
			}
			return txn.Set(k, chunk)
		}); err != nil {
			return "", fmt.Errorf("store chunk %x: %w", digest[:8], err)
		}
		manifest = append(manifest, digest[:]...)
		total += uint64(len(chunk))
	}
	if total == 0 {
		return "", ErrEmpty
	}
	binary.BigEndian.PutUint64(manifest[:8], total)

	digest := sha3.Sum256(manifest)
	if err := s.kv.Update(func(txn *kvstore.Txn) error {
		return txn.Set(manifestKey(digest), manifest)
	}); err != nil {
		return "", fmt.Errorf("store manifest: %w", err)
	}

	hash := FormatHash(digest)
	s.log.WithFields(logrus.Fields{
		"contentHash": hash,
		"size":        total,
		"chunks":      (len(manifest) - 8) / 32,
	}).Debug("content stored")
	return hash, nil
}

// Get writes the blob identified by hash to w.
func (s *Store) Get(ctx context.Context, hash string, w io.Writer) error {
	digest, err := ParseHash(hash)
	if err != nil {
		return err
	}
	return s.kv.View(func(txn *kvstore.Txn) error {
		manifest, err := txn.Get(manifestKey(digest))
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		if err != nil {
			return err
		}
		if len(manifest) < 8 || (len(manifest)-8)%32 != 0 {
			return fmt.Errorf("corrupt manifest for %s", hash)
		}
		for off := 8; off < len(manifest); off += 32 {
			if err := ctx.Err(); err != nil {
				return err
			}
			var d [32]byte
			copy(d[:], manifest[off:off+32])
			chunk, err := txn.Get(chunkKey(d))
			if err != nil {
				return fmt.Errorf("chunk %x of %s: %w", d[:8], hash, err)
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// Has reports whether a manifest for hash exists. Malformed hashes are
// reported as absent.
func (s *Store) Has(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	digest, err := ParseHash(hash)
	if err != nil {
		return false, nil
	}
	var ok bool
	err = s.kv.View(func(txn *kvstore.Txn) error {
		ok, err = txn.Has(manifestKey(digest))
		return err
	})
	return ok, err
}

func FormatHash(d [32]byte) string {
	return hashPrefix + hex.EncodeToString(d[:])
}

func ParseHash(s string) ([32]byte, error) {
	var d [32]byte
	rest, ok := strings.CutPrefix(s, hashPrefix)
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	raw, err := hex.DecodeString(rest)
	if err != nil || len(raw) != len(d) {
		return d, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	copy(d[:], raw)
	return d, nil
}

func chunkKey(d [32]byte) []byte {
	return append(append([]byte{}, prefixChunk...), d[:]...)
}

func manifestKey(d [32]byte) []byte {
	return append(append([]byte{}, prefixManifest...), d[:]...)
}
