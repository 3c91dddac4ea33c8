package health

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// HeadReader is the part of an EVM client needed to prove it is reachable.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// RPCChecker pings every configured network endpoint.
type RPCChecker struct {
	clients map[string]HeadReader
}

// NewRPCChecker creates a checker keyed by network name.
func NewRPCChecker(clients map[string]HeadReader) *RPCChecker {
	return &RPCChecker{clients: clients}
}

// Ping asks each endpoint for its head block and joins the failures.
func (c *RPCChecker) Ping(ctx context.Context) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(c.clients)) {
		if _, err := c.clients[name].BlockNumber(ctx); err != nil {
			errs = append(errs, fmt.Errorf("network %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
