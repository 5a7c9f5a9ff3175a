package matching

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/jonathan/applier/internal/types"
)

// Score rescales the cosine similarity of two embeddings to [0,100].
// A zero vector has cosine 0 against anything and scores 50.
func Score(resume, job []float32) (float64, error) {
	if err := types.CheckEmbedding(resume); err != nil {
		return 0, err
	}
	if err := types.CheckEmbedding(job); err != nil {
		return 0, err
	}

	var dot, normA, normB float64
	for i := range resume {
		a, b := float64(resume[i]), float64(job[i])
		dot += a * b
		normA += a * a
		normB += b * b
	}

	cos := 0.0
	if normA > 0 && normB > 0 {
		cos = dot / (math.Sqrt(normA) * math.Sqrt(normB))
	}
	cos = math.Max(-1, math.Min(1, cos))

	score := (cos + 1) / 2 * 100
	// scores are persisted as NUMERIC(5,2)
	return math.Round(score*100) / 100, nil
}

// Resume is a resume embedding together with its fingerprint. Scores stored
// against a different fingerprint are stale.
type Resume struct {
	Embedding   []float32
	Fingerprint string
}

// NewResume validates the embedding and computes its fingerprint
func NewResume(embedding []float32) (Resume, error) {
	if err := types.CheckEmbedding(embedding); err != nil {
		return Resume{}, err
	}
	return Resume{
		Embedding:   append([]float32(nil), embedding...),
		Fingerprint: Fingerprint(embedding),
	}, nil
}

// Fingerprint returns the hex sha256 of the little-endian float32 encoding of v
func Fingerprint(v []float32) string {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, f := range v {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
