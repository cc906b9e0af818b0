// MODUL: dataset
// ZWECK: Batch-Quellen fuer das Training
// INPUT: Batch-Groesse, Datenquelle (synthetisch, Bildverzeichnis, MNIST IDX)
// OUTPUT: Query (Kontext und Kamera) und Ziel-Batch [batch, height, width, channels]
// NEBENEFFEKTE: Dateisystem-Lesezugriff je nach Quelle
// ABHAENGIGKEITEN: ml, vision, golang.org/x/sync/errgroup
// HINWEISE: Der VAE nutzt nur den Ziel-Batch. Kontext und Kameras bilden
//           das Format der Szenen-Datensaetze ab und duerfen nil sein.

package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/7blacky7/vae/ml"
)

// CameraDim ist die Laenge eines Kameravektors:
// Position (x, y, z), sin/cos Gierwinkel, sin/cos Nickwinkel
const CameraDim = 7

// ErrNotNormalized meldet Pixelwerte ausserhalb [0,1]
var ErrNotNormalized = errors.New("batch not normalized to [0,1]")

// Context sind die Kontextansichten einer Szene
type Context struct {
	Images  *ml.Tensor // [batch, context, height, width, channels]
	Cameras *ml.Tensor // [batch, context, CameraDim]
}

// Query ist alles ausser dem Zielbild
type Query struct {
	Context     Context
	QueryCamera *ml.Tensor // [batch, CameraDim]
}

// Reader liefert Batches. Read blockiert, bis ein Batch bereit ist.
type Reader interface {
	Read(ctx context.Context, batchSize int) (Query, *ml.Tensor, error)
}

// Normalize skaliert Batches mit Werten in [0,255] auf [0,1]. Bereits
// normalisierte Batches bleiben unveraendert.
func Normalize(batch *ml.Tensor) *ml.Tensor {
	if batch.Len() == 0 || batch.Max() <= 1 {
		return batch
	}
	for i, v := range batch.Data {
		batch.Data[i] = v / 255
	}
	return batch
}

// CheckNormalized prueft, dass alle Werte endlich und in [0,1] sind
func CheckNormalized(batch *ml.Tensor) error {
	for i, v := range batch.Data {
		if math.IsNaN(float64(v)) || v < 0 || v > 1 {
			return fmt.Errorf("%w: element %d is %v", ErrNotNormalized, i, v)
		}
	}
	return nil
}

func checkBatchSize(n int) error {
	if n < 1 {
		return fmt.Errorf("invalid batch size %d", n)
	}
	return nil
}

// cursor liefert Indizes in gemischter Reihenfolge, neu gemischt pro Epoche
type cursor struct {
	rng   *ml.RNG
	order []int
	pos   int
	epoch int
}

func newCursor(n int, rng *ml.RNG) *cursor {
	c := &cursor{rng: rng, order: make([]int, n)}
	for i := range c.order {
		c.order[i] = i
	}
	c.shuffle()
	return c
}

func (c *cursor) shuffle() {
	c.rng.Shuffle(len(c.order), func(i, j int) {
		c.order[i], c.order[j] = c.order[j], c.order[i]
	})
}

func (c *cursor) next() int {
	if c.pos == len(c.order) {
		c.pos = 0
		c.epoch++
		c.shuffle()
	}
	i := c.order[c.pos]
	c.pos++
	return i
}
