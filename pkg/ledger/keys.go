package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonsphere/weave/pkg/model"
)

// Key layout. Ids are big-endian so prefix iteration yields id order.
var ( // A
	prefixUser        = []byte("u/")
	prefixWallet      = []byte("w/")
	prefixConnection  = []byte("c/")
	prefixPair        = []byte("p/")
	prefixAdjacency   = []byte("a/")
	prefixInteraction = []byte("i/")
	prefixConnLog     = []byte("l/")

	seqUser        = []byte("s/user")
	seqConnection  = []byte("s/connection")
	seqInteraction = []byte("s/interaction")
)

func key(prefix []byte, parts ...uint64) []byte { // A
	k := make([]byte, len(prefix), len(prefix)+8*len(parts))
	copy(k, prefix)
	for _, p := range parts {
		k = binary.BigEndian.AppendUint64(k, p)
	}
	return k
}

func userKey(id model.UserID) []byte { // A
	return key(prefixUser, uint64(id))
}

func walletKey(w common.Address) []byte { // A
	return append(append([]byte{}, prefixWallet...), w.Bytes()...)
}

func connectionKey(id model.ConnectionID) []byte { // A
	return key(prefixConnection, uint64(id))
}

func pairKey(p model.Pair) []byte { // A
	return key(prefixPair, uint64(p.Low), uint64(p.High))
}

func adjacencyPrefix(u model.UserID) []byte { // A
	return key(prefixAdjacency, uint64(u))
}

func adjacencyKey(u model.UserID, c model.ConnectionID) []byte { // A
	return key(prefixAdjacency, uint64(u), uint64(c))
}

func interactionKey(id model.InteractionID) []byte { // A
	return key(prefixInteraction, uint64(id))
}

func connLogPrefix(c model.ConnectionID) []byte { // A
	return key(prefixConnLog, uint64(c))
}

func connLogKey(c model.ConnectionID, i model.InteractionID) []byte { // A
	return key(prefixConnLog, uint64(c), uint64(i))
}

func encodeID(id uint64) []byte { // A
	return binary.BigEndian.AppendUint64(nil, id)
}

// trailingID returns the last eight bytes of k as an id.
func trailingID(k []byte) uint64 { // A
	return binary.BigEndian.Uint64(k[len(k)-8:])
}
