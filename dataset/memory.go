package dataset

import (
	"context"

	"github.com/7blacky7/vae/ml"
)

// Memory liest zufaellige Batches aus einem Tensor [n, height, width, channels]
type Memory struct {
	images *ml.Tensor
	cur    *cursor
}

// NewMemory normalisiert images bei Bedarf auf [0,1]
func NewMemory(images *ml.Tensor, rng *ml.RNG) (*Memory, error) {
	if err := ml.CheckShape("memory dataset", ml.Shape{-1, -1, -1, -1}, images.Shape); err != nil {
		return nil, err
	}
	if err := CheckNormalized(Normalize(images)); err != nil {
		return nil, err
	}
	return &Memory{images: images, cur: newCursor(images.Dim(0), rng)}, nil
}

// Len ist die Anzahl der Bilder
func (m *Memory) Len() int {
	return m.images.Dim(0)
}

// Epoch zaehlt vollstaendige Durchlaeufe
func (m *Memory) Epoch() int {
	return m.cur.epoch
}

func (m *Memory) Read(ctx context.Context, batchSize int) (Query, *ml.Tensor, error) {
	if err := checkBatchSize(batchSize); err != nil {
		return Query{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return Query{}, nil, err
	}

	shape := m.images.Shape.Clone()
	shape[0] = batchSize
	batch := ml.Zeros(shape)
	for b := 0; b < batchSize; b++ {
		copy(batch.Row(b), m.images.Row(m.cur.next()))
	}
	return Query{}, batch, nil
}
