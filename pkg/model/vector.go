package model

import "math"

// NormalizeEmbedding cleans a raw embedding before storage: non-finite
// components are dropped, the vector is capped at MaxEmbeddingDim, and a
// vector that is empty after cleaning becomes nil ("no embedding").
func NormalizeEmbedding(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}

	cleaned := make([]float32, 0, len(vec))
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		cleaned = append(cleaned, v)
		if len(cleaned) == MaxEmbeddingDim {
			break
		}
	}

	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

// CosineSimilarity computes cosine similarity over the overlapping prefix of
// the two vectors. Component pairs containing a non-finite value are skipped.
// Returns 0 when either vector is empty or has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		va := float64(a[i])
		vb := float64(b[i])
		if math.IsNaN(va) || math.IsInf(va, 0) || math.IsNaN(vb) || math.IsInf(vb, 0) {
			continue
		}
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
