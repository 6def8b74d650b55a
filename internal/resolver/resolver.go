// Package resolver turns a raw query embedding into a single best-person
// decision by aggregating similarity across all of a person's enrolled
// embeddings.
package resolver

import (
	"fmt"

	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

// PersonMatch is the aggregated per-person result of a resolve. A person
// enrolled with several embeddings matches if any single one matches
// strongly; the aggregate fields are retained so alerting can distinguish an
// incidental strong match from consistent recognition.
type PersonMatch struct {
	PersonID               string   `json:"person_id"`
	MaxSimilarity          float64  `json:"max_similarity"`
	AvgSimilarity          float64  `json:"avg_similarity"`
	MatchingEmbeddingCount int      `json:"matching_embedding_count"`
	TotalEmbeddingCount    int      `json:"total_embedding_count"`
	EmbeddingIDs           []string `json:"embedding_ids"`
}

// Searcher is the slice of the vector index the resolver needs.
type Searcher interface {
	Search(query []float32, k int, threshold float64) ([]vectorindex.Candidate, error)
	PersonEmbeddingCount(personID string) int
}

// Resolver aggregates index candidates into person matches.
type Resolver struct {
	index   Searcher
	searchK int
}

// New creates a resolver. searchK must exceed the maximum number of
// embeddings expected per person so no person's matches are truncated.
func New(index Searcher, searchK int) *Resolver {
	if searchK <= 0 {
		searchK = 100
	}
	return &Resolver{index: index, searchK: searchK}
}

type personAgg struct {
	personID     string
	sum          float64
	max          float64
	count        int
	embeddingIDs []string
}

// Resolve returns the best-matching person for the query, or nil when no
// person clears the threshold ("unknown person").
//
// Selection is best match wins: the person with the greatest single-embedding
// similarity, ties broken by greater matching count, then by smallest person
// id for determinism.
func (r *Resolver) Resolve(query []float32, threshold float64) (*PersonMatch, error) {
	candidates, err := r.index.Search(query, r.searchK, threshold)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	groups := make(map[string]*personAgg)
	for _, c := range candidates {
		agg, ok := groups[c.PersonID]
		if !ok {
			agg = &personAgg{personID: c.PersonID}
			groups[c.PersonID] = agg
		}
		agg.sum += c.Similarity
		agg.count++
		if c.Similarity > agg.max {
			agg.max = c.Similarity
		}
		agg.embeddingIDs = append(agg.embeddingIDs, c.EmbeddingID)
	}

	var best *personAgg
	for _, agg := range groups {
		if best == nil || better(agg, best) {
			best = agg
		}
	}

	if best.max < threshold {
		return nil, nil
	}

	return &PersonMatch{
		PersonID:               best.personID,
		MaxSimilarity:          best.max,
		AvgSimilarity:          best.sum / float64(best.count),
		MatchingEmbeddingCount: best.count,
		TotalEmbeddingCount:    r.index.PersonEmbeddingCount(best.personID),
		EmbeddingIDs:           best.embeddingIDs,
	}, nil
}

func better(a, b *personAgg) bool {
	if a.max != b.max {
		return a.max > b.max
	}
	if a.count != b.count {
		return a.count > b.count
	}
	return a.personID < b.personID
}
