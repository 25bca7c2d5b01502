// Package chunker splits blobs for the content store.
package chunker

import (
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"
)

// DefaultSize is the fixed chunk size, and the average size for
// content-defined chunking.
const DefaultSize = 256 * 1024

// Chunker splits a stream of data into chunks.
type Chunker interface {
	// Next returns the next chunk of data.
	// It returns io.EOF when there are no more chunks.
	Next() ([]byte, error)
}

// New returns a fixed-size chunker, or a Rabin fingerprinting one when
// rabin is set. A size of zero or less selects DefaultSize.
func New(r io.Reader, size int64, rabin bool) Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if rabin {
		return &splitter{s: boxochunker.NewRabin(r, uint64(size))}
	}
	return &splitter{s: boxochunker.NewSizeSplitter(r, size)}
}

type splitter struct {
	s boxochunker.Splitter
}

func (c *splitter) Next() ([]byte, error) {
	return c.s.NextBytes()
}
