// MODUL: sampler
// ZWECK: Reparametrisierung z = mean + exp(0.5 * log_var) * eps
// INPUT: Posterior (mean, log_var), Rauschen eps ~ N(0, I)
// OUTPUT: Latent-Vektor z und Gradienten bezueglich mean und log_var
// NEBENEFFEKTE: Sampler zieht Zufallszahlen aus seinem RNG
// ABHAENGIGKEITEN: ml
// HINWEISE: Reparameterize ist rein, eps wird explizit uebergeben. Durch eps
//           fliesst kein Gradient.

package vae

import (
	"math"

	"github.com/7blacky7/vae/ml"
)

// Reparameterize berechnet z elementweise. Alle drei Tensoren muessen
// dieselbe Shape [batch, latent_dim] haben.
func Reparameterize(mean, logVar, eps *ml.Tensor) (*ml.Tensor, error) {
	if err := ml.CheckShape("reparameterize log_var", mean.Shape, logVar.Shape); err != nil {
		return nil, err
	}
	if err := ml.CheckShape("reparameterize epsilon", mean.Shape, eps.Shape); err != nil {
		return nil, err
	}

	z := ml.New(mean.Shape...)
	for i := range z.Data {
		z.Data[i] = mean.Data[i] + float32(math.Exp(0.5*float64(logVar.Data[i])))*eps.Data[i]
	}
	return z, nil
}

// ReparameterizeGrad leitet dz auf mean und log_var zurueck:
// dz/dmean = 1, dz/dlog_var = 0.5 * exp(0.5 * log_var) * eps
func ReparameterizeGrad(dz, logVar, eps *ml.Tensor) (dMean, dLogVar *ml.Tensor, err error) {
	if err := ml.CheckShape("reparameterize grad", logVar.Shape, dz.Shape); err != nil {
		return nil, nil, err
	}
	if err := ml.CheckShape("reparameterize grad epsilon", logVar.Shape, eps.Shape); err != nil {
		return nil, nil, err
	}

	dMean = dz.Clone()
	dLogVar = ml.New(dz.Shape...)
	for i, g := range dz.Data {
		dLogVar.Data[i] = g * 0.5 * float32(math.Exp(0.5*float64(logVar.Data[i]))) * eps.Data[i]
	}
	return dMean, dLogVar, nil
}

// Sampler zieht bei jedem Aufruf frisches Rauschen
type Sampler struct {
	rng *ml.RNG
}

func NewSampler(rng *ml.RNG) *Sampler {
	return &Sampler{rng: rng}
}

// Sample gibt z und das verwendete eps zurueck
func (s *Sampler) Sample(p Posterior) (z, eps *ml.Tensor, err error) {
	eps = s.rng.Normal(p.Mean.Shape...)
	z, err = Reparameterize(p.Mean, p.LogVar, eps)
	if err != nil {
		return nil, nil, err
	}
	return z, eps, nil
}
