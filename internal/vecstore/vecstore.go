// Package vecstore is the optional vector-similarity collaborator behind the
// vector_hybrid formation strategy. It keeps one embedding per discoverable
// user in a SQLite-backed document store and scores candidates against an
// anchor by cosine similarity. The whole package is best-effort: callers
// degrade to heuristic scoring whenever it is unavailable.
package vecstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/viant/sqlite-vec/vector"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Embedder turns profile text into a vector.
type Embedder interface {
	EmbedText(text string) []float32
}

// HashEmbedder is a deterministic embedder for development and tests: it
// hashes the input text and expands the digest into a stable vector in
// [-1, 1]. Equal texts always produce equal vectors.
type HashEmbedder struct {
	Dimension int
}

func (e HashEmbedder) EmbedText(text string) []float32 {
	dim := e.Dimension
	if dim <= 0 {
		dim = 16
	}

	out := make([]float32, 0, dim)
	seed := []byte(text)
	var counter uint32
	for len(out) < dim {
		var suffix [4]byte
		binary.BigEndian.PutUint32(suffix[:], counter)
		digest := sha256.Sum256(append(seed, suffix[:]...))
		counter++
		for i := 0; i+4 <= len(digest) && len(out) < dim; i += 4 {
			v := binary.BigEndian.Uint32(digest[i : i+4])
			out = append(out, float32(v)/float32(0xFFFFFFFF)*2-1)
		}
	}
	return out
}

// Index stores and queries user profile embeddings.
type Index struct {
	db       *sql.DB
	store    *vector.SQLiteStore
	embedder Embedder
}

// Open creates (or reuses) the embedding store at the given SQLite path.
func Open(path string, embedder Embedder) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}
	store, err := vector.NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init vector store: %w", err)
	}
	return &Index{db: db, store: store, embedder: embedder}, nil
}

// Close releases the underlying database handle.
func (x *Index) Close() error { return x.db.Close() }

// UpsertProfile replaces the stored embedding for a user with one derived
// from the given profile text.
func (x *Index) UpsertProfile(ctx context.Context, userID uuid.UUID, profileText string) error {
	id := userID.String()
	if err := x.store.Remove(ctx, id); err != nil {
		return err
	}
	_, err := x.store.AddDocuments(ctx, []vector.Document{{
		ID:        id,
		Content:   profileText,
		Embedding: x.embedder.EmbedText(profileText),
	}})
	return err
}

// SimilarUsers scores the given candidates against the anchor by cosine
// similarity of their stored embeddings. Candidates without a stored
// embedding are omitted from the result; a missing anchor yields an empty
// map. Satisfies matching.SimilarityProvider.
func (x *Index) SimilarUsers(ctx context.Context, anchorID uuid.UUID, candidateIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	anchor, err := x.embedding(ctx, anchorID.String())
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return map[uuid.UUID]float64{}, nil
	}

	scores := make(map[uuid.UUID]float64, len(candidateIDs))
	for _, id := range candidateIDs {
		emb, err := x.embedding(ctx, id.String())
		if err != nil {
			return nil, err
		}
		if emb == nil {
			continue
		}
		sim, err := vector.CosineSimilarity(anchor, emb)
		if err != nil {
			continue // dimension mismatch from an older embedding version
		}
		scores[id] = sim
	}
	return scores, nil
}

func (x *Index) embedding(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := x.db.QueryRowContext(ctx, `SELECT embedding FROM docs WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vector.DecodeEmbedding(blob)
}
