// Package calibration produces synthetic representative inputs for int8
// post-training quantization. Sets are generated on demand and written to a
// temporary location consumed by the target compiler; they are never
// persisted beyond one compilation.
package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/renameio"
)

// defaultVocabSize matches the WordPiece vocabulary of the MiniLM family,
// the models this pipeline is tuned for.
const defaultVocabSize = 30522

// Set is an ordered sequence of synthetic token-id samples.
type Set struct {
	BatchSize int
	SeqLen    int
	Samples   [][]int64
}

// Generate builds n deterministic samples for the given input shape. The
// fixed seed keeps quantization ranges reproducible across invocations.
func Generate(n, batchSize, seqLen int) (*Set, error) {
	if n <= 0 {
		return nil, fmt.Errorf("calibration sample count must be positive, got %d", n)
	}
	if batchSize <= 0 || seqLen <= 0 {
		return nil, fmt.Errorf("invalid calibration shape %dx%d", batchSize, seqLen)
	}

	rng := rand.New(rand.NewSource(0x7a75))
	set := &Set{
		BatchSize: batchSize,
		SeqLen:    seqLen,
		Samples:   make([][]int64, 0, n),
	}
	for i := 0; i < n; i++ {
		sample := make([]int64, batchSize*seqLen)
		for j := range sample {
			sample[j] = rng.Int63n(defaultVocabSize)
		}
		set.Samples = append(set.Samples, sample)
	}
	return set, nil
}

// Len returns the number of samples in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Samples)
}

// WriteFile serializes the set as JSON lines, one sample per line, written
// atomically so the compiler tool never observes a partial dataset.
func (s *Set) WriteFile(path string) error {
	if s.Len() == 0 {
		return fmt.Errorf("refusing to write empty calibration set")
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, sample := range s.Samples {
		if err := encoder.Encode(sample); err != nil {
			return fmt.Errorf("encode calibration sample: %w", err)
		}
	}
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}
