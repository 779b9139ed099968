package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashParts_Deterministic(t *testing.T) {
	a := HashParts("one", "two", "three")
	b := HashParts("one", "two", "three")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashParts("one", "two"))
}

func TestComputeEvidenceID_OrderIndependent(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)

	permutations := [][]string{
		{"det-a", "det-b", "det-c"},
		{"det-c", "det-a", "det-b"},
		{"det-b", "det-c", "det-a"},
	}

	want := ComputeEvidenceID(permutations[0], start, end)
	for _, perm := range permutations {
		assert.Equal(t, want, ComputeEvidenceID(perm, start, end))
	}
	assert.NotEqual(t, want, ComputeEvidenceID(permutations[0], start, end.Add(time.Minute)))
}

func TestComputeGraphID_OrderIndependent(t *testing.T) {
	a := ComputeGraphID("cand-1", []string{"d1", "d2", "d3"})
	b := ComputeGraphID("cand-1", []string{"d3", "d1", "d2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ComputeGraphID("cand-2", []string{"d1", "d2", "d3"}))
}

func TestComputeEvidenceKey_OrderIndependent(t *testing.T) {
	a := ComputeEvidenceKey([]string{"d1", "d2"})
	b := ComputeEvidenceKey([]string{"d2", "d1"})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "EVIDENCE:")
}

func TestIdempotencyKeys_Namespaced(t *testing.T) {
	// Identical raw ids in different stages must never collide.
	id := "same-raw-id"
	keys := []string{
		ComputeConfidenceKey(id),
		ComputePromotionKey(id),
		ComputeIncidentKey(id),
	}
	seen := make(map[string]struct{})
	for _, k := range keys {
		_, dup := seen[k]
		assert.False(t, dup, "key collision: %s", k)
		seen[k] = struct{}{}
	}
}

func TestDedupSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, DedupSorted([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, DedupSorted(nil))
}

func TestCanonicalStateHash_IgnoresVolatileFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inc := &Incident{
		IncidentID:  "inc-1",
		Status:      IncidentStatusOpen,
		Service:     "checkout",
		Severity:    SeverityHigh,
		Title:       "error spike",
		CandidateID: "cand-1",
		EvidenceID:  "ev-1",
		CreatedAt:   now,
	}

	h1, err := CanonicalStateHash(inc)
	require.NoError(t, err)
	require.Len(t, h1, 64)

	// Bumping only volatile bookkeeping must not change the hash.
	bumped := inc.Clone()
	bumped.IncidentVersion = 7
	bumped.UpdatedAt = now.Add(time.Hour)
	bumped.UpdatedBy = "someone"

	h2, err := CanonicalStateHash(bumped)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// A meaningful state change must change the hash.
	changed := inc.Clone()
	changed.Status = IncidentStatusMitigating
	h3, err := CanonicalStateHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
