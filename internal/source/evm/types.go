package evm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blueogin/trade-data-collector/internal/blockrange"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownEvent is returned for event selectors other than the two orderbook events.
var ErrUnknownEvent = errors.New("unknown event type")

// EventKind identifies which orderbook event a log represents.
type EventKind int

const (
	// KindTakeOrder is the primary event; logs are compared against its signature.
	KindTakeOrder EventKind = iota + 1
	// KindClear is the secondary event; every non-primary log is classified as it.
	KindClear
)

const (
	TakeOrderEventName = "TakeOrderV2"
	ClearEventName     = "ClearV2"
)

func (k EventKind) String() string {
	switch k {
	case KindTakeOrder:
		return TakeOrderEventName
	case KindClear:
		return ClearEventName
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ParseEventKind maps an event name to its kind.
func ParseEventKind(name string) (EventKind, error) {
	switch strings.TrimSpace(name) {
	case TakeOrderEventName:
		return KindTakeOrder, nil
	case ClearEventName:
		return KindClear, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// Signatures holds the topic0 hashes of the two orderbook events.
type Signatures struct {
	TakeOrder common.Hash
	Clear     common.Hash
}

// Classify returns KindTakeOrder when topic0 is the TakeOrderV2 signature and KindClear otherwise.
func (s Signatures) Classify(topic0 common.Hash) EventKind {
	if topic0 == s.TakeOrder {
		return KindTakeOrder
	}
	return KindClear
}

// Of returns the signature for a kind.
func (s Signatures) Of(kind EventKind) common.Hash {
	if kind == KindTakeOrder {
		return s.TakeOrder
	}
	return s.Clear
}

// OrderEvent is one extracted orderbook event as it is persisted.
type OrderEvent struct {
	Origin    common.Address
	Kind      EventKind
	TxHash    common.Hash
	Timestamp uint64
}

// FetchError reports a failed log query for one block range.
type FetchError struct {
	Range blockrange.Range
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch logs %s: %v", e.Range, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
