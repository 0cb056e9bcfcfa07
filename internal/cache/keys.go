// Package cache implements the pluggable Cache port (C6): an in-process LRU
// adapter and a distributed (Redis) adapter, plus key composition and
// namespace-pattern invalidation per spec.md §4.6.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	NamespaceEmbedding = "emb"
	NamespaceSearch    = "search"
	NamespaceRAG       = "rag"

	keyVersion = "v1"
)

// Key composes a structured cache key "<namespace>:<version>:<hash>" where
// hash is a stable SHA-256 (truncated) over the canonical input.
func Key(namespace string, canonicalInput string) string {
	sum := sha256.Sum256([]byte(canonicalInput))
	return fmt.Sprintf("%s:%s:%s", namespace, keyVersion, hex.EncodeToString(sum[:16]))
}

// Pattern returns the namespace-wide invalidation pattern used by
// DeleteMatching, e.g. "search:*".
func Pattern(namespace string) string {
	return namespace + ":*"
}
