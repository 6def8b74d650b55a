package vectorindex

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"

	"github.com/coder/hnsw"
)

const snapshotVersion = 1

// snapshotBlob is the binary vector store, gob-encoded at basePath+".vectors".
type snapshotBlob struct {
	Version int
	Dim     int
	Vectors [][]float32
}

// snapshotMeta is the JSON companion at basePath+".meta". The pair is
// rejected as a whole when the recorded dimensions disagree.
type snapshotMeta struct {
	Version         int              `json:"version"`
	Dim             int              `json:"dimension"`
	TotalVectors    int              `json:"total_vectors"`
	Entries         []Entry          `json:"entries"`
	PersonPositions map[string][]int `json:"person_positions"`
}

func vectorsPath(basePath string) string { return basePath + ".vectors" }
func metaPath(basePath string) string    { return basePath + ".meta" }

// Save writes the vector blob and its companion metadata file. Both files are
// written together; a half-written pair is detected at load time by the
// cross-checks in Load.
func (ix *Index) Save(ctx context.Context, basePath string) error {
	ix.mu.RLock()
	blob := snapshotBlob{
		Version: snapshotVersion,
		Dim:     ix.dim,
		Vectors: ix.vectors,
	}
	meta := snapshotMeta{
		Version:         snapshotVersion,
		Dim:             ix.dim,
		TotalVectors:    len(ix.vectors),
		Entries:         append([]Entry(nil), ix.entries...),
		PersonPositions: clonePositions(ix.personPositions),
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(blob)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding vector blob: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot cancelled: %w", err)
	}

	if err := os.WriteFile(vectorsPath(basePath), buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing vector blob: %w", err)
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling snapshot metadata: %w", err)
	}
	if err := os.WriteFile(metaPath(basePath), metaData, 0600); err != nil {
		return fmt.Errorf("writing snapshot metadata: %w", err)
	}

	return nil
}

func clonePositions(src map[string][]int) map[string][]int {
	out := make(map[string][]int, len(src))
	for k, v := range src {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// Load reads a snapshot pair and fully replaces the in-memory state. Any
// decode failure or inconsistency between blob and companion fails with
// ErrCorruptIndex; the caller must fall back to an empty index.
func (ix *Index) Load(ctx context.Context, basePath string) error {
	blobData, err := os.ReadFile(vectorsPath(basePath))
	if err != nil {
		return fmt.Errorf("%w: reading vector blob: %v", ErrCorruptIndex, err)
	}
	metaData, err := os.ReadFile(metaPath(basePath))
	if err != nil {
		return fmt.Errorf("%w: reading snapshot metadata: %v", ErrCorruptIndex, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot load cancelled: %w", err)
	}

	var blob snapshotBlob
	if err := gob.NewDecoder(bytes.NewReader(blobData)).Decode(&blob); err != nil {
		return fmt.Errorf("%w: decoding vector blob: %v", ErrCorruptIndex, err)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("%w: decoding snapshot metadata: %v", ErrCorruptIndex, err)
	}

	if err := validateSnapshot(&blob, &meta, ix.dim); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.vectors = blob.Vectors
	ix.entries = meta.Entries
	ix.personPositions = meta.PersonPositions
	if ix.personPositions == nil {
		ix.personPositions = make(map[string][]int)
	}
	ix.activeCount = 0
	for i := range ix.entries {
		if ix.entries[i].Active {
			ix.activeCount++
		}
	}
	ix.rebuildGraph()

	return nil
}

// validateSnapshot cross-checks the pair before any state is replaced.
func validateSnapshot(blob *snapshotBlob, meta *snapshotMeta, dim int) error {
	if blob.Version != snapshotVersion || meta.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version (blob %d, meta %d)", ErrCorruptIndex, blob.Version, meta.Version)
	}
	if blob.Dim != meta.Dim {
		return fmt.Errorf("%w: blob dimension %d disagrees with metadata dimension %d", ErrCorruptIndex, blob.Dim, meta.Dim)
	}
	if blob.Dim != dim {
		return fmt.Errorf("%w: snapshot dimension %d incompatible with index dimension %d", ErrCorruptIndex, blob.Dim, dim)
	}
	if len(blob.Vectors) != len(meta.Entries) || len(blob.Vectors) != meta.TotalVectors {
		return fmt.Errorf("%w: vector count %d does not match metadata (%d entries, %d recorded)",
			ErrCorruptIndex, len(blob.Vectors), len(meta.Entries), meta.TotalVectors)
	}
	for i, v := range blob.Vectors {
		if len(v) != blob.Dim {
			return fmt.Errorf("%w: vector at position %d has dimension %d", ErrCorruptIndex, i, len(v))
		}
		if meta.Entries[i].Position != i {
			return fmt.Errorf("%w: entry at slot %d records position %d", ErrCorruptIndex, i, meta.Entries[i].Position)
		}
	}
	for personID, positions := range meta.PersonPositions {
		for _, pos := range positions {
			if pos < 0 || pos >= len(meta.Entries) {
				return fmt.Errorf("%w: person %s references position %d out of range", ErrCorruptIndex, personID, pos)
			}
		}
	}
	return nil
}

// rebuildGraph reconstructs the HNSW accelerator from restored state.
// Caller holds the write lock.
func (ix *Index) rebuildGraph() {
	ix.graph = nil
	if ix.hnswMinSize <= 0 {
		return
	}
	g := newGraph()
	for i := range ix.entries {
		if ix.entries[i].Zero {
			continue
		}
		g.Add(hnsw.MakeNode(i, ix.vectors[i]))
	}
	ix.graph = g
}

// SnapshotExists reports whether both files of a snapshot pair are present.
func SnapshotExists(basePath string) bool {
	if _, err := os.Stat(vectorsPath(basePath)); err != nil {
		return false
	}
	if _, err := os.Stat(metaPath(basePath)); err != nil {
		return false
	}
	return true
}
