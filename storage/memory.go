package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"vigil/core"
)

// In-memory implementations of the storage interfaces. They enforce the same
// conditional-write semantics as the SQLite stores and back the unit tests
// of the layers above storage.

// MemoryDetectionStorage is a map-backed DetectionStorageInterface.
type MemoryDetectionStorage struct {
	mu         sync.RWMutex
	detections map[string]core.Detection
}

func NewMemoryDetectionStorage() *MemoryDetectionStorage {
	return &MemoryDetectionStorage{detections: make(map[string]core.Detection)}
}

func (m *MemoryDetectionStorage) PutDetection(ctx context.Context, det *core.Detection) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.detections[det.DetectionID]; ok {
		return false, nil
	}
	m.detections[det.DetectionID] = *det
	return true, nil
}

func (m *MemoryDetectionStorage) GetDetection(ctx context.Context, detectionID string) (*core.Detection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	det, ok := m.detections[detectionID]
	if !ok {
		return nil, ErrDetectionNotFound
	}
	return &det, nil
}

func (m *MemoryDetectionStorage) QueryDetectionsInWindow(ctx context.Context, start, end time.Time, ruleID string) ([]core.Detection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Detection
	for _, det := range m.detections {
		if det.DetectedAt.Before(start) || !det.DetectedAt.Before(end) {
			continue
		}
		if ruleID != "" && det.RuleID != ruleID {
			continue
		}
		out = append(out, det)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectionID < out[j].DetectionID })
	return out, nil
}

// MemoryEvidenceGraphStorage is a map-backed EvidenceGraphStorageInterface.
type MemoryEvidenceGraphStorage struct {
	mu     sync.RWMutex
	graphs map[string]core.EvidenceGraph
}

func NewMemoryEvidenceGraphStorage() *MemoryEvidenceGraphStorage {
	return &MemoryEvidenceGraphStorage{graphs: make(map[string]core.EvidenceGraph)}
}

func (m *MemoryEvidenceGraphStorage) PutEvidenceGraph(ctx context.Context, graph *core.EvidenceGraph) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.graphs[graph.GraphID]; ok {
		return false, nil
	}
	m.graphs[graph.GraphID] = *graph
	return true, nil
}

func (m *MemoryEvidenceGraphStorage) GetEvidenceGraph(ctx context.Context, graphID string) (*core.EvidenceGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	graph, ok := m.graphs[graphID]
	if !ok {
		return nil, ErrEvidenceGraphNotFound
	}
	return &graph, nil
}

func (m *MemoryEvidenceGraphStorage) GetEvidenceGraphsByCandidate(ctx context.Context, candidateID string) ([]core.EvidenceGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.EvidenceGraph
	for _, graph := range m.graphs {
		if graph.CandidateID == candidateID {
			out = append(out, graph)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraphID < out[j].GraphID })
	return out, nil
}

// MemoryEvidenceBundleStorage is a map-backed EvidenceBundleStorageInterface.
type MemoryEvidenceBundleStorage struct {
	mu      sync.RWMutex
	bundles map[string]core.EvidenceBundle
}

func NewMemoryEvidenceBundleStorage() *MemoryEvidenceBundleStorage {
	return &MemoryEvidenceBundleStorage{bundles: make(map[string]core.EvidenceBundle)}
}

func (m *MemoryEvidenceBundleStorage) PutEvidenceBundle(ctx context.Context, bundle *core.EvidenceBundle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bundles[bundle.EvidenceID]; ok {
		return false, nil
	}
	m.bundles[bundle.EvidenceID] = *bundle
	return true, nil
}

func (m *MemoryEvidenceBundleStorage) GetEvidenceBundle(ctx context.Context, evidenceID string) (*core.EvidenceBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bundle, ok := m.bundles[evidenceID]
	if !ok {
		return nil, ErrEvidenceBundleNotFound
	}
	return &bundle, nil
}

// MemoryCandidateStorage is a map-backed CandidateStorageInterface.
type MemoryCandidateStorage struct {
	mu         sync.RWMutex
	candidates map[string]core.IncidentCandidate
}

func NewMemoryCandidateStorage() *MemoryCandidateStorage {
	return &MemoryCandidateStorage{candidates: make(map[string]core.IncidentCandidate)}
}

func (m *MemoryCandidateStorage) PutCandidate(ctx context.Context, candidate *core.IncidentCandidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.candidates[candidate.CandidateID]; ok {
		return false, nil
	}
	m.candidates[candidate.CandidateID] = *candidate
	return true, nil
}

func (m *MemoryCandidateStorage) GetCandidate(ctx context.Context, candidateID string) (*core.IncidentCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	candidate, ok := m.candidates[candidateID]
	if !ok {
		return nil, ErrCandidateNotFound
	}
	return &candidate, nil
}

// MemoryIncidentStorage is a map-backed IncidentStorageInterface with the
// same optimistic version guard as the SQLite store.
type MemoryIncidentStorage struct {
	mu        sync.RWMutex
	incidents map[string]*core.Incident
}

func NewMemoryIncidentStorage() *MemoryIncidentStorage {
	return &MemoryIncidentStorage{incidents: make(map[string]*core.Incident)}
}

func (m *MemoryIncidentStorage) CreateIncident(ctx context.Context, inc *core.Incident) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[inc.IncidentID]; ok {
		return false, nil
	}
	m.incidents[inc.IncidentID] = inc.Clone()
	return true, nil
}

func (m *MemoryIncidentStorage) GetIncident(ctx context.Context, incidentID string) (*core.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incidents[incidentID]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return inc.Clone(), nil
}

func (m *MemoryIncidentStorage) UpdateIncident(ctx context.Context, inc *core.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.incidents[inc.IncidentID]
	if !ok {
		return ErrIncidentNotFound
	}
	if current.IncidentVersion != inc.IncidentVersion-1 {
		return ErrVersionConflict
	}
	m.incidents[inc.IncidentID] = inc.Clone()
	return nil
}

func (m *MemoryIncidentStorage) HasActiveIncident(ctx context.Context, incidentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incidents[incidentID]
	if !ok {
		return false, nil
	}
	return !inc.Status.IsTerminal(), nil
}

func (m *MemoryIncidentStorage) ListIncidents(ctx context.Context, limit, offset int) ([]core.Incident, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []core.Incident
	for _, inc := range m.incidents {
		all = append(all, *inc.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].IncidentID < all[j].IncidentID
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

// MemoryEventStorage is a map-backed EventStorageInterface enforcing the
// gap-free append guard.
type MemoryEventStorage struct {
	mu     sync.RWMutex
	events map[string][]core.EventRecord
}

func NewMemoryEventStorage() *MemoryEventStorage {
	return &MemoryEventStorage{events: make(map[string][]core.EventRecord)}
}

func (m *MemoryEventStorage) AppendEvent(ctx context.Context, rec *core.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.events[rec.IncidentID]
	if rec.EventSeq != int64(len(existing))+1 {
		return ErrSequenceConflict
	}
	m.events[rec.IncidentID] = append(existing, *rec)
	return nil
}

func (m *MemoryEventStorage) GetEvents(ctx context.Context, incidentID string) ([]core.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[incidentID]
	out := make([]core.EventRecord, len(events))
	copy(out, events)
	return out, nil
}

func (m *MemoryEventStorage) LatestSeq(ctx context.Context, incidentID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events[incidentID])), nil
}

// MemoryIdempotencyStorage is a map-backed IdempotencyStorageInterface.
type MemoryIdempotencyStorage struct {
	mu      sync.Mutex
	records map[string]IdempotencyRecord
}

func NewMemoryIdempotencyStorage() *MemoryIdempotencyStorage {
	return &MemoryIdempotencyStorage{records: make(map[string]IdempotencyRecord)}
}

func (m *MemoryIdempotencyStorage) PutIfAbsent(ctx context.Context, rec *IdempotencyRecord) (*IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[rec.Key]; ok {
		out := existing
		return &out, false, nil
	}
	m.records[rec.Key] = *rec
	return rec, true, nil
}

func (m *MemoryIdempotencyStorage) GetRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}
