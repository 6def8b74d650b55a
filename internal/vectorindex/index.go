package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW graph parameters, same values the standard construction uses.
const (
	hnswMaxNeighbors     = 16
	hnswSearchMultiplier = 4
	hnswSearchFloor      = 100
)

// Entry maps a dense index position to an embedding identity.
// Positions are insertion order and are never reused or compacted;
// removal is a logical deactivation.
type Entry struct {
	Position    int    `json:"position"`
	EmbeddingID string `json:"embedding_id"`
	PersonID    string `json:"person_id"`
	Active      bool   `json:"active"`
	Zero        bool   `json:"zero,omitempty"` // vector had zero norm, stored unnormalized
}

// Candidate is a single search result. Similarity is cosine similarity
// clamped to [0, 1].
type Candidate struct {
	PersonID    string  `json:"person_id"`
	EmbeddingID string  `json:"embedding_id"`
	Similarity  float64 `json:"similarity"`
	Position    int     `json:"position"`
}

// Stats describes the index state for health and observability endpoints.
type Stats struct {
	Dim           int  `json:"dimension"`
	Size          int  `json:"total_vectors"`
	ActiveSize    int  `json:"active_vectors"`
	UniquePersons int  `json:"unique_persons"`
	HNSWActive    bool `json:"hnsw_active"`
}

// Index is an append-only in-memory similarity index over fixed-dimension
// embeddings. Vectors are unit-normalized on insert so inner product equals
// cosine similarity. Writes (Add, DeactivatePerson, Restore) serialize
// against each other; searches run concurrently under a read lock.
type Index struct {
	mu              sync.RWMutex
	dim             int
	vectors         [][]float32
	entries         []Entry
	personPositions map[string][]int
	activeCount     int

	// Approximate path: the graph mirrors every active insertion and is
	// consulted only once the index grows past hnswMinSize. Results are
	// re-scored exactly against the stored vectors, so threshold and
	// ordering semantics match the flat scan.
	graph       *hnsw.Graph[int]
	hnswMinSize int
}

// New creates an empty index for vectors of the given dimension.
// hnswMinSize <= 0 disables the approximate search path.
func New(dim, hnswMinSize int) *Index {
	return &Index{
		dim:             dim,
		personPositions: make(map[string][]int),
		hnswMinSize:     hnswMinSize,
	}
}

// Normalize returns a unit-L2-norm copy of v, or (v, false) when v has zero
// norm and cannot be normalized.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// clampSimilarity maps an inner product of unit vectors to [0, 1].
// Negative cosine values carry no useful signal for face identity.
func clampSimilarity(ip float64) float64 {
	if ip < 0 {
		return 0
	}
	if ip > 1 {
		return 1
	}
	return ip
}

// Add normalizes and appends a vector, returning its position.
// Fails with ErrDimensionMismatch when the vector length is wrong.
func (ix *Index) Add(personID, embeddingID string, vector []float32) (int, error) {
	if len(vector) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	normalized, ok := Normalize(vector)
	stored := make([]float32, len(normalized))
	copy(stored, normalized)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	position := len(ix.vectors)
	ix.vectors = append(ix.vectors, stored)
	ix.entries = append(ix.entries, Entry{
		Position:    position,
		EmbeddingID: embeddingID,
		PersonID:    personID,
		Active:      true,
		Zero:        !ok,
	})
	ix.personPositions[personID] = append(ix.personPositions[personID], position)
	ix.activeCount++

	if ix.hnswMinSize > 0 && ok {
		if ix.graph == nil {
			ix.graph = newGraph()
		}
		ix.graph.Add(hnsw.MakeNode(position, stored))
	}

	return position, nil
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Search returns up to k candidates with similarity >= threshold, ordered by
// descending similarity, ties broken by earliest insertion position. An empty
// index or no qualifying candidate yields an empty slice, not an error.
func (ix *Index) Search(query []float32, k int, threshold float64) ([]Candidate, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	q, ok := Normalize(query)
	if !ok {
		// A zero query matches nothing.
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.hnswMinSize > 0 && ix.graph != nil && len(ix.vectors) >= ix.hnswMinSize {
		return ix.searchApprox(q, k, threshold), nil
	}
	return ix.searchExact(q, k, threshold), nil
}

// searchExact scans every active vector. Caller holds the read lock.
func (ix *Index) searchExact(q []float32, k int, threshold float64) []Candidate {
	candidates := make([]Candidate, 0, k)
	for i := range ix.entries {
		e := &ix.entries[i]
		if !e.Active || e.Zero {
			continue
		}
		sim := clampSimilarity(dot(q, ix.vectors[i]))
		if sim < threshold {
			continue
		}
		candidates = append(candidates, Candidate{
			PersonID:    e.PersonID,
			EmbeddingID: e.EmbeddingID,
			Similarity:  sim,
			Position:    e.Position,
		})
	}
	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// searchApprox over-fetches from the HNSW graph for recall, then re-scores
// exactly. Caller holds the read lock.
func (ix *Index) searchApprox(q []float32, k int, threshold float64) []Candidate {
	searchK := k * hnswSearchMultiplier
	if searchK < hnswSearchFloor {
		searchK = hnswSearchFloor
	}

	neighbors := ix.graph.Search(q, searchK)
	candidates := make([]Candidate, 0, k)
	for _, n := range neighbors {
		e := &ix.entries[n.Key]
		if !e.Active || e.Zero {
			continue
		}
		sim := clampSimilarity(dot(q, ix.vectors[n.Key]))
		if sim < threshold {
			continue
		}
		candidates = append(candidates, Candidate{
			PersonID:    e.PersonID,
			EmbeddingID: e.EmbeddingID,
			Similarity:  sim,
			Position:    e.Position,
		})
	}
	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Position < candidates[j].Position
	})
}

// DeactivatePerson marks all of a person's positions inactive without
// compacting storage. Returns false if the person has no embeddings.
func (ix *Index) DeactivatePerson(personID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	positions, ok := ix.personPositions[personID]
	if !ok {
		return false
	}
	for _, pos := range positions {
		if ix.entries[pos].Active {
			ix.entries[pos].Active = false
			ix.activeCount--
		}
	}
	return true
}

// PersonEmbeddingCount returns how many embeddings (active or not) the index
// holds for a person. Zero means the person is unknown to the index.
func (ix *Index) PersonEmbeddingCount(personID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.personPositions[personID])
}

// Dim returns the fixed vector dimension of the index.
func (ix *Index) Dim() int {
	return ix.dim
}

// Size returns the total number of vectors ever added.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// ActiveSize returns the number of vectors still included in search.
func (ix *Index) ActiveSize() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.activeCount
}

// Stats returns a point-in-time snapshot of index statistics.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Dim:           ix.dim,
		Size:          len(ix.vectors),
		ActiveSize:    ix.activeCount,
		UniquePersons: len(ix.personPositions),
		HNSWActive:    ix.hnswMinSize > 0 && ix.graph != nil && len(ix.vectors) >= ix.hnswMinSize,
	}
}
