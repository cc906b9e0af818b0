package vae

import (
	"fmt"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/nn"
)

// Decoder bildet Latent-Vektoren auf Rekonstruktionen ab. Die
// Ausgabe-Aktivierung liegt ausserhalb von Body, damit der Verlust direkt
// nach den Logits ableiten kann.
type Decoder struct {
	Body       *nn.Sequential
	Activation nn.Layer

	cfg Config
}

func newDecoder(cfg Config, rng *ml.RNG) (*Decoder, error) {
	body := nn.NewSequential()
	width := cfg.LatentDim
	for i, w := range cfg.DecoderDense {
		body.Add(nn.NewLinear(fmt.Sprintf("decoder.dense%d", i), width, w, cfg.Init, rng), nn.NewActivation(cfg.DenseActivation))
		width = w
	}

	seed := cfg.SeedHeight * cfg.SeedWidth * cfg.SeedChannels
	body.Add(
		nn.NewLinear("decoder.seed", width, seed, cfg.Init, rng),
		nn.NewActivation(cfg.DenseActivation),
		nn.NewReshape(cfg.SeedHeight, cfg.SeedWidth, cfg.SeedChannels),
	)

	cin := cfg.SeedChannels
	for i, s := range cfg.Decoder {
		body.Add(
			nn.NewConvTranspose2D(fmt.Sprintf("decoder.deconv%d", i), s.Kernel, s.Kernel, cin, s.Filters, s.stride(), s.Padding, cfg.Init, rng),
			nn.NewActivation(s.Activation),
		)
		cin = s.Filters
	}
	body.Add(nn.NewConv2D("decoder.output", cfg.Output.Kernel, cfg.Output.Kernel, cin, cfg.Output.Filters, cfg.Output.stride(), cfg.Output.Padding, cfg.Init, rng))

	out, err := body.OutputShape(cfg.LatentShape())
	if err != nil {
		return nil, err
	}
	if err := ml.CheckShape("decoder output", cfg.ImageShape(), out); err != nil {
		return nil, err
	}

	return &Decoder{Body: body, Activation: nn.NewActivation(cfg.Output.Activation), cfg: cfg}, nil
}

// forward gibt Logits und Rekonstruktion zurueck
func (d *Decoder) forward(z *ml.Tensor) (logits, recon *ml.Tensor, err error) {
	if err := ml.CheckShape("decoder input", d.cfg.LatentShape(), z.Shape); err != nil {
		return nil, nil, err
	}
	if logits, err = d.Body.Forward(z); err != nil {
		return nil, nil, err
	}
	if recon, err = d.Activation.Forward(logits); err != nil {
		return nil, nil, err
	}
	return logits, recon, nil
}

// Decode bildet z [batch, latent_dim] auf ein Bild-Batch ab
func (d *Decoder) Decode(z *ml.Tensor) (*ml.Tensor, error) {
	_, recon, err := d.forward(z)
	return recon, err
}

// backward nimmt den Gradienten bezueglich der Logits und gibt dz zurueck
func (d *Decoder) backward(dLogits *ml.Tensor) (*ml.Tensor, error) {
	return d.Body.Backward(dLogits)
}

func (d *Decoder) Params() []*nn.Param {
	return d.Body.Params()
}
