// rand.go - Reproduzierbare Zufallszahlen fuer Initialisierung und Sampling
package ml

import (
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// RNG kapselt eine gesaete Quelle. Nicht fuer parallele Nutzung gedacht:
// jede Goroutine bekommt ihren eigenen RNG ueber Split.
type RNG struct {
	rand *rand.Rand
	seed uint64
}

// NewRNG erzeugt einen RNG. seed 0 waehlt einen zeitbasierten Seed.
func NewRNG(seed uint64) *RNG {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed gibt den tatsaechlich verwendeten Seed zurueck
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Split zieht einen Seed aus r und gibt einen unabhaengigen RNG zurueck.
// Gleicher Seed in r ergibt die gleiche Folge von Kindern.
func (r *RNG) Split() *RNG {
	seed := r.rand.Uint64()
	if seed == 0 {
		seed = 1
	}
	return NewRNG(seed)
}

// FillNormal fuellt t mit N(mu, sigma^2)-Werten
func (r *RNG) FillNormal(t *Tensor, mu, sigma float64) {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: r.rand}
	for i := range t.Data {
		t.Data[i] = float32(dist.Rand())
	}
}

// FillUniform fuellt t mit Werten aus [lo, hi)
func (r *RNG) FillUniform(t *Tensor, lo, hi float64) {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: r.rand}
	for i := range t.Data {
		t.Data[i] = float32(dist.Rand())
	}
}

// Normal erzeugt einen neuen Tensor mit Standardnormal-Werten
func (r *RNG) Normal(shape ...int) *Tensor {
	t := New(shape...)
	r.FillNormal(t, 0, 1)
	return t
}

// Intn gibt eine gleichverteilte Zahl aus [0, n) zurueck
func (r *RNG) Intn(n int) int {
	return r.rand.Intn(n)
}

// Float64 gibt eine Zahl aus [0, 1) zurueck
func (r *RNG) Float64() float64 {
	return r.rand.Float64()
}

// Shuffle mischt n Elemente ueber swap (Fisher-Yates aus x/exp/rand)
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.rand.Shuffle(n, swap)
}
