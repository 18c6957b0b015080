// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// keyPrefixLen is the number of hex characters retained from the full
// SHA-256 digest.
const keyPrefixLen = 32

// Key computes the stable cache key for a logical request:
// SHA-256(useCase + ":" + content + ":" + canonicalJSON(variables)),
// truncated to a fixed prefix. Variables are serialized with sorted keys
// so identical logical requests hash identically regardless of map
// iteration or insertion order.
func Key(useCase, content string, variables map[string]any) (string, error) {
	// encoding/json marshals map keys in sorted order, which is exactly
	// the canonical form required here.
	canonical, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize cache variables: %w", err)
	}

	sum := sha256.Sum256([]byte(useCase + ":" + content + ":" + string(canonical)))
	return hex.EncodeToString(sum[:])[:keyPrefixLen], nil
}
