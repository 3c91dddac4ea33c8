package evm

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveBlock interprets a block bound relative to the chain head.
// Accepted forms: "latest", "latest-N" and a decimal block number.
func ResolveBlock(bound string, latest uint64) (uint64, error) {
	bound = strings.TrimSpace(bound)
	if bound == "latest" {
		return latest, nil
	}
	if strings.HasPrefix(bound, "latest-") {
		offsetStr := strings.TrimPrefix(bound, "latest-")
		n, err := strconv.ParseUint(offsetStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse block %q: %w", bound, err)
		}
		if n > latest {
			return 0, nil
		}
		return latest - n, nil
	}

	n, err := strconv.ParseUint(bound, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block %q: %w", bound, err)
	}
	return n, nil
}

// IsRelative reports whether bound needs the chain head to resolve.
func IsRelative(bound string) bool {
	bound = strings.TrimSpace(bound)
	return bound == "latest" || strings.HasPrefix(bound, "latest-")
}
