package repository

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/timmy/assetlens/internal/domain"
)

func checkVector(vector []float32, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("got %d dimensions, index expects %d: %w",
			len(vector), dim, domain.ErrDimensionMismatch)
	}
	return nil
}

// MemoryIndex is an in-process cosine-similarity index. It keeps records in
// insertion order and scans all of them per query, which suits development
// setups and tests rather than large collections.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	records   []memoryRecord
	closed    bool
}

type memoryRecord struct {
	rec  domain.AssetRecord
	norm float64
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension}
}

// Ready reports whether the index accepts operations.
func (m *MemoryIndex) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.dimension > 0
}

// Dimension returns the vector size.
func (m *MemoryIndex) Dimension() int { return m.dimension }

// Close makes every later operation fail with domain.ErrIndexUnavailable.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	m.closed = true
	m.records = nil
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryIndex) usable() error {
	if m.closed || m.dimension <= 0 {
		return domain.ErrIndexUnavailable
	}
	return nil
}

// Upsert stores rec, replacing any record with the same RecordID.
func (m *MemoryIndex) Upsert(_ context.Context, rec *domain.AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(); err != nil {
		return err
	}
	if err := checkVector(rec.Vector, m.dimension); err != nil {
		return err
	}

	stored := *rec
	stored.Vector = append([]float32(nil), rec.Vector...)
	stored.Metadata = make(domain.Metadata, len(rec.Metadata))
	for k, v := range rec.Metadata {
		stored.Metadata[k] = v
	}
	entry := memoryRecord{rec: stored, norm: norm(stored.Vector)}

	for i := range m.records {
		if m.records[i].rec.RecordID == rec.RecordID {
			m.records[i] = entry
			return nil
		}
	}
	m.records = append(m.records, entry)
	return nil
}

// Search ranks records by cosine similarity, highest first. Ties keep
// insertion order.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int, filter *domain.SearchFilter) ([]domain.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.usable(); err != nil {
		return nil, err
	}
	if err := checkVector(vector, m.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}

	qnorm := norm(vector)
	results := make([]domain.SearchResult, 0, len(m.records))
	for _, r := range m.records {
		if !filter.IsEmpty() && r.rec.Metadata[domain.MetaWorkspace] != filter.Workspace {
			continue
		}
		meta := make(domain.Metadata, len(r.rec.Metadata))
		for k, v := range r.rec.Metadata {
			meta[k] = v
		}
		results = append(results, domain.SearchResult{
			RecordID:    r.rec.RecordID,
			AssetID:     r.rec.AssetID,
			Score:       cosine(vector, r.rec.Vector, qnorm, r.norm),
			Description: r.rec.Description,
			Metadata:    meta,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteAsset removes every record of assetID except the keep ids.
func (m *MemoryIndex) DeleteAsset(_ context.Context, assetID string, keep ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(); err != nil {
		return err
	}

	kept := m.records[:0]
	for _, r := range m.records {
		if r.rec.AssetID == assetID && !slices.Contains(keep, r.rec.RecordID) {
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(m.records); i++ {
		m.records[i] = memoryRecord{}
	}
	m.records = kept
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a, b []float32, na, nb float64) float32 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (na * nb))
}
