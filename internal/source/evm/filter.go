package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultSelector selects both orderbook events.
const DefaultSelector = "default"

// Filter selects logs emitted by one contract whose topic0 is any of Topics.
type Filter struct {
	Contract common.Address
	Topics   []common.Hash
}

// NewFilter builds the per-run filter from a symbolic event selector.
// An empty or "default" selector matches both events.
func NewFilter(contract common.Address, sigs Signatures, selector string) (Filter, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.EqualFold(selector, DefaultSelector) {
		return Filter{Contract: contract, Topics: []common.Hash{sigs.TakeOrder, sigs.Clear}}, nil
	}
	kind, err := ParseEventKind(selector)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Contract: contract, Topics: []common.Hash{sigs.Of(kind)}}, nil
}
