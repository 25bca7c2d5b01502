package ledger

import (
	"context"

	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

// InteractionHook runs after an interaction is committed and its events
// are delivered. It runs without ledger locks held and may call back
// into the ledger, for example to apply a reputation delta. Errors are
// logged; the interaction stays recorded.
type InteractionHook func(ctx context.Context, iv model.InteractionView) error // A

// ReputationAggregator combines a stored encrypted reputation with an
// encrypted delta. The ledger never computes on ciphertexts itself; an
// FHE coprocessor or contract behind this interface does.
type ReputationAggregator interface { // A
	Aggregate(
		ctx context.Context,
		current cipher.Handle,
		delta cipher.Handle,
	) (cipher.Handle, error)
}

// ContentIndex reports whether a content hash refers to stored content.
type ContentIndex interface { // A
	Has(ctx context.Context, contentHash string) (bool, error)
}
