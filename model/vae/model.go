// MODUL: model
// ZWECK: Variational Autoencoder aus Encoder, Sampler und Decoder
// INPUT: Config, Bild-Batches [batch, height, width, channels]
// OUTPUT: Pass (mean, log_var, eps, z, Rekonstruktion), Verlust, Gradienten
// NEBENEFFEKTE: TrainStep aktualisiert die Gewichte ueber einen Optimierer
// ABHAENGIGKEITEN: ml, ml/nn, ml/optim
// HINWEISE: Layer merken sich den letzten Forward-Pass. Ein Model ist daher
//           nicht fuer parallele Aufrufe gedacht.

package vae

import (
	"fmt"
	"log/slog"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/nn"
	"github.com/7blacky7/vae/ml/optim"
)

// Pass haelt alle Groessen eines Forward-Passes. KL und Rekonstruktion werden
// immer aus demselben Pass berechnet.
type Pass struct {
	Input *ml.Tensor
	Posterior
	Epsilon *ml.Tensor
	Z       *ml.Tensor
	Logits  *ml.Tensor
	Recon   *ml.Tensor

	gen uint64
}

// Model ist ein VAE mit fester Architektur
type Model struct {
	Config  Config
	Encoder *Encoder
	Decoder *Decoder
	Sampler *Sampler

	// gen zaehlt Forward-Aufrufe, Backward akzeptiert nur den juengsten Pass
	gen uint64
}

// New validiert cfg und initialisiert alle Gewichte aus rng
func New(cfg Config, rng *ml.RNG) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc, err := newEncoder(cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: encoder: %w", ErrInvalidConfig, err)
	}
	dec, err := newDecoder(cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: decoder: %w", ErrInvalidConfig, err)
	}

	m := &Model{Config: cfg, Encoder: enc, Decoder: dec, Sampler: NewSampler(rng)}
	slog.Debug("vae model initialized", "preset", cfg.Name, "image", cfg.ImageShape(), "latent_dim", cfg.LatentDim, "params", m.NumParams())
	return m, nil
}

// Forward kodiert x, zieht z und dekodiert
func (m *Model) Forward(x *ml.Tensor) (*Pass, error) {
	post, err := m.Encoder.Encode(x)
	if err != nil {
		return nil, err
	}
	z, eps, err := m.Sampler.Sample(post)
	if err != nil {
		return nil, err
	}
	logits, recon, err := m.Decoder.forward(z)
	if err != nil {
		return nil, err
	}

	m.gen++
	return &Pass{Input: x, Posterior: post, Epsilon: eps, Z: z, Logits: logits, Recon: recon, gen: m.gen}, nil
}

// Loss berechnet den Batch-Verlust eines Passes
func (m *Model) Loss(p *Pass) (LossResult, error) {
	return Loss(m.Config.Reconstruction, p.Recon, p.Input, p.Posterior)
}

// Backward addiert die Gradienten des Verlusts von p auf alle Parameter
func (m *Model) Backward(p *Pass) error {
	if p.gen != m.gen {
		return fmt.Errorf("backward: pass %d is stale, model is at %d", p.gen, m.gen)
	}

	dz, err := m.Decoder.backward(reconstructionGrad(m.Config.Reconstruction, p.Recon, p.Input))
	if err != nil {
		return err
	}
	dMean, dLogVar, err := ReparameterizeGrad(dz, p.LogVar, p.Epsilon)
	if err != nil {
		return err
	}

	klMean, klLogVar := klGrad(p.Posterior)
	if err := dMean.AddInPlace(klMean); err != nil {
		return err
	}
	if err := dLogVar.AddInPlace(klLogVar); err != nil {
		return err
	}
	return m.Encoder.Backward(dMean, dLogVar)
}

// TrainStep fuehrt einen Optimierungsschritt auf einem Batch aus
func (m *Model) TrainStep(x *ml.Tensor, opt optim.Optimizer) (LossResult, error) {
	params := m.Params()
	nn.ZeroGrad(params)

	p, err := m.Forward(x)
	if err != nil {
		return LossResult{}, err
	}
	res, err := m.Loss(p)
	if err != nil {
		return res, err
	}
	if err := m.Backward(p); err != nil {
		return res, err
	}
	if err := opt.Step(params); err != nil {
		return res, err
	}
	return res, nil
}

// Evaluate berechnet den Verlust ohne Gewichte zu veraendern
func (m *Model) Evaluate(x *ml.Tensor) (LossResult, error) {
	p, err := m.Forward(x)
	if err != nil {
		return LossResult{}, err
	}
	return m.Loss(p)
}

// Encode gibt nur die Posterior-Parameter zurueck
func (m *Model) Encode(x *ml.Tensor) (Posterior, error) {
	m.gen++
	return m.Encoder.Encode(x)
}

// Decode bildet z direkt auf Bilder ab, ohne Encoder
func (m *Model) Decode(z *ml.Tensor) (*ml.Tensor, error) {
	m.gen++
	return m.Decoder.Decode(z)
}

func (m *Model) Params() []*nn.Param {
	return append(m.Encoder.Params(), m.Decoder.Params()...)
}

func (m *Model) NumParams() int {
	return nn.NumParams(m.Params())
}
