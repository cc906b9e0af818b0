package vae

import (
	"fmt"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/nn"
)

// Posterior sind die Parameter der diagonalen Normalverteilung q(z|x),
// beide [batch, latent_dim]
type Posterior struct {
	Mean   *ml.Tensor
	LogVar *ml.Tensor
}

// Encoder bildet Bilder auf (mean, log_var) ab. Ein gemeinsamer Rumpf aus
// Faltungen speist zwei lineare Koepfe.
type Encoder struct {
	Trunk  *nn.Sequential
	Mean   *nn.Linear
	LogVar *nn.Linear

	cfg Config
	// clipped markiert log_var-Werte, die beim Klemmen veraendert wurden
	clipped []bool
}

func newEncoder(cfg Config, rng *ml.RNG) (*Encoder, error) {
	trunk := nn.NewSequential()
	cin := cfg.Channels
	for i, s := range cfg.Encoder {
		trunk.Add(
			nn.NewConv2D(fmt.Sprintf("encoder.conv%d", i), s.Kernel, s.Kernel, cin, s.Filters, s.stride(), s.Padding, cfg.Init, rng),
			nn.NewActivation(s.Activation),
		)
		cin = s.Filters
	}
	trunk.Add(&nn.Flatten{})

	flat, err := trunk.OutputShape(cfg.ImageShape())
	if err != nil {
		return nil, err
	}
	width := flat[1]
	for i, w := range cfg.EncoderDense {
		trunk.Add(nn.NewLinear(fmt.Sprintf("encoder.dense%d", i), width, w, cfg.Init, rng), nn.NewActivation(cfg.DenseActivation))
		width = w
	}

	return &Encoder{
		Trunk:  trunk,
		Mean:   nn.NewLinear("encoder.z_mean", width, cfg.LatentDim, cfg.Init, rng),
		LogVar: nn.NewLinear("encoder.z_log_var", width, cfg.LatentDim, cfg.Init, rng),
		cfg:    cfg,
	}, nil
}

// Encode liefert die Posterior-Parameter. log_var wird auf
// [LogVarMin, LogVarMax] geklemmt, damit exp(log_var) endlich bleibt.
func (e *Encoder) Encode(x *ml.Tensor) (Posterior, error) {
	if err := ml.CheckShape("encoder input", e.cfg.ImageShape(), x.Shape); err != nil {
		return Posterior{}, err
	}

	h, err := e.Trunk.Forward(x)
	if err != nil {
		return Posterior{}, err
	}
	mean, err := e.Mean.Forward(h)
	if err != nil {
		return Posterior{}, err
	}
	logVar, err := e.LogVar.Forward(h)
	if err != nil {
		return Posterior{}, err
	}

	if !mean.AllFinite() || !logVar.AllFinite() {
		return Posterior{}, fmt.Errorf("%w: encoder produced non-finite values", ErrNumericInstability)
	}

	e.clipped = clampLogVar(logVar, e.cfg.LogVarMin, e.cfg.LogVarMax)
	return Posterior{Mean: mean, LogVar: logVar}, nil
}

func clampLogVar(t *ml.Tensor, lo, hi float32) []bool {
	clipped := make([]bool, t.Len())
	for i, v := range t.Data {
		switch {
		case v < lo:
			t.Data[i], clipped[i] = lo, true
		case v > hi:
			t.Data[i], clipped[i] = hi, true
		}
	}
	return clipped
}

// Backward nimmt die Gradienten bezueglich mean und geklemmtem log_var.
// Geklemmte Eintraege leiten keinen Gradienten weiter.
func (e *Encoder) Backward(dMean, dLogVar *ml.Tensor) error {
	if len(e.clipped) != dLogVar.Len() {
		return fmt.Errorf("encoder: %w", ml.ErrShapeMismatch)
	}
	for i, c := range e.clipped {
		if c {
			dLogVar.Data[i] = 0
		}
	}

	dh, err := e.Mean.Backward(dMean)
	if err != nil {
		return err
	}
	dhLogVar, err := e.LogVar.Backward(dLogVar)
	if err != nil {
		return err
	}
	if err := dh.AddInPlace(dhLogVar); err != nil {
		return err
	}

	_, err = e.Trunk.Backward(dh)
	return err
}

func (e *Encoder) Params() []*nn.Param {
	params := e.Trunk.Params()
	params = append(params, e.Mean.Params()...)
	return append(params, e.LogVar.Params()...)
}
