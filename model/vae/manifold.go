package vae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/vae/ml"
)

// LatentGrid gibt n gleichmaessig verteilte Werte aus [lo, hi] zurueck
func LatentGrid(n int, lo, hi float64) []float64 {
	if n < 1 {
		return nil
	}
	if n == 1 {
		return []float64{(lo + hi) / 2}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Manifold dekodiert ein n x n Gitter ueber die ersten beiden Latent-Achsen
// und setzt die Bilder zu einer Leinwand [n*height, n*width, channels]
// zusammen. Zeile 0 gehoert zum groessten y, Spalte 0 zum kleinsten x.
// Weitere Latent-Achsen bleiben 0.
func Manifold(m *Model, n int, lo, hi float64) (*ml.Tensor, error) {
	cfg := m.Config
	if n < 1 {
		return nil, fmt.Errorf("manifold: grid size %d", n)
	}
	if cfg.LatentDim < 2 {
		return nil, fmt.Errorf("manifold: %w: needs latent_dim >= 2, have %d", ErrInvalidConfig, cfg.LatentDim)
	}

	grid := LatentGrid(n, lo, hi)
	h, w, c := cfg.Height, cfg.Width, cfg.Channels

	tiles := ml.New(n, n, h, w, c)
	for i := 0; i < n; i++ {
		z := ml.New(n, cfg.LatentDim)
		for j := 0; j < n; j++ {
			row := z.Row(j)
			row[0], row[1] = float32(grid[j]), float32(grid[n-1-i])
		}

		// eine Gitterzeile pro Batch haelt den Speicher klein
		imgs, err := m.Decode(z)
		if err != nil {
			return nil, fmt.Errorf("manifold row %d: %w", i, err)
		}
		copy(tiles.Row(i), imgs.Data)
	}

	// [gy, gx, h, w, c] -> [gy, h, gx, w, c]
	canvas, err := ml.Permute(tiles, 0, 2, 1, 3, 4)
	if err != nil {
		return nil, err
	}
	return canvas.Reshape(n*h, n*w, c)
}
