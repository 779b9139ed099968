package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// HashParts computes the deterministic SHA-256 hex digest of parts joined by
// "|". Every content-addressed identifier in the pipeline goes through here so
// the digest shape is uniform across stages.
func HashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// SortedCopy returns a sorted copy of ids without mutating the input. Callers
// hash the copy so identifier computation is order-independent.
func SortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

// DedupSorted returns the sorted set union of ids with duplicates removed.
func DedupSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// volatileStateFields are excluded from the canonical incident hash. They
// change on every append (audit bookkeeping) without changing the meaningful
// state, so two equivalent incidents must hash identically regardless of them.
// updatedBy is stamped alongside updatedAt on every write; the acting identity
// is preserved in each event record's actor field instead.
var volatileStateFields = map[string]struct{}{
	"version":   {},
	"updatedAt": {},
	"updatedBy": {},
	"eventSeq":  {},
	"timeline":  {},
}

// CanonicalStateHash computes the SHA-256 hex digest of the deep-key-sorted
// JSON view of an incident with volatile fields removed. encoding/json already
// emits map keys in sorted order, so round-tripping the struct through a
// generic map yields a canonical byte form independent of field declaration
// order or audit-trail length.
func CanonicalStateHash(incident *Incident) (string, error) {
	raw, err := json.Marshal(incident)
	if err != nil {
		return "", fmt.Errorf("failed to marshal incident for hashing: %w", err)
	}

	var view map[string]interface{}
	if err := json.Unmarshal(raw, &view); err != nil {
		return "", fmt.Errorf("failed to build canonical view: %w", err)
	}
	for field := range volatileStateFields {
		delete(view, field)
	}

	canonical, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical view: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
