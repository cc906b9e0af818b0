package vae

import (
	"errors"
	"fmt"
	"math"

	"github.com/7blacky7/vae/ml"
)

// ErrNumericInstability meldet NaN oder Inf in Verlust oder Aktivierungen
var ErrNumericInstability = errors.New("numeric instability")

// bceEpsilon ist die Keras-Klemmung der Wahrscheinlichkeiten
const bceEpsilon = 1e-7

// LossResult ist der Batch-Mittelwert beider Terme
type LossResult struct {
	Total          float64 `json:"loss"`
	Reconstruction float64 `json:"reconstruction"`
	KL             float64 `json:"kl"`
}

// Finite prueft alle drei Werte
func (l LossResult) Finite() bool {
	for _, v := range []float64{l.Total, l.Reconstruction, l.KL} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// KLDivergence gibt pro Beispiel -0.5 * sum(1 + log_var - mean^2 - exp(log_var)) zurueck
func KLDivergence(p Posterior) ([]float64, error) {
	if err := ml.CheckShape("kl divergence", ml.Shape{-1, -1}, p.Mean.Shape); err != nil {
		return nil, err
	}
	if err := ml.CheckShape("kl divergence", p.Mean.Shape, p.LogVar.Shape); err != nil {
		return nil, err
	}

	kl := make([]float64, p.Mean.Dim(0))
	for b := range kl {
		lv := p.LogVar.Row(b)
		var s float64
		for i, m := range p.Mean.Row(b) {
			m, l := float64(m), float64(lv[i])
			s += 1 + l - m*m - math.Exp(l)
		}
		kl[b] = -0.5 * s
	}
	return kl, nil
}

// ReconstructionLoss gibt pro Beispiel die Summe ueber alle Pixel zurueck
func ReconstructionLoss(kind Reconstruction, recon, target *ml.Tensor) ([]float64, error) {
	if err := ml.CheckShape("reconstruction loss", target.Shape, recon.Shape); err != nil {
		return nil, err
	}
	if recon.Rank() < 1 {
		return nil, &ml.ShapeError{Op: "reconstruction loss", Want: ml.Shape{-1}, Got: recon.Shape}
	}

	loss := make([]float64, recon.Dim(0))
	for b := range loss {
		x := target.Row(b)
		var s float64
		for i, p := range recon.Row(b) {
			p, x := float64(p), float64(x[i])
			switch kind {
			case ReconstructionBCE:
				p = min(max(p, bceEpsilon), 1-bceEpsilon)
				s -= x*math.Log(p) + (1-x)*math.Log(1-p)
			case ReconstructionMSE:
				s += (p - x) * (p - x)
			default:
				return nil, fmt.Errorf("%w: unknown reconstruction %q", ErrInvalidConfig, kind)
			}
		}
		loss[b] = s
	}
	return loss, nil
}

// Loss berechnet den Batch-Verlust: Summe ueber Merkmale, Mittel ueber den Batch
func Loss(kind Reconstruction, recon, target *ml.Tensor, p Posterior) (LossResult, error) {
	rec, err := ReconstructionLoss(kind, recon, target)
	if err != nil {
		return LossResult{}, err
	}
	kl, err := KLDivergence(p)
	if err != nil {
		return LossResult{}, err
	}
	if len(rec) != len(kl) {
		return LossResult{}, &ml.ShapeError{Op: "loss batch", Want: ml.Shape{len(rec)}, Got: ml.Shape{len(kl)}}
	}

	var res LossResult
	for i := range rec {
		res.Reconstruction += rec[i]
		res.KL += kl[i]
	}
	n := float64(len(rec))
	res.Reconstruction /= n
	res.KL /= n
	res.Total = res.Reconstruction + res.KL

	if !res.Finite() {
		return res, fmt.Errorf("%w: loss %v (reconstruction %v, kl %v)", ErrNumericInstability, res.Total, res.Reconstruction, res.KL)
	}
	return res, nil
}

// reconstructionGrad ist der Gradient des Rekonstruktionsterms nach den
// Logits. Mit Sigmoid+BCE bzw. linear+MSE vereinfacht er sich zu
// (p - x) / B bzw. 2 (p - x) / B.
func reconstructionGrad(kind Reconstruction, recon, target *ml.Tensor) *ml.Tensor {
	scale := 1 / float32(recon.Dim(0))
	if kind == ReconstructionMSE {
		scale *= 2
	}

	d := ml.New(recon.Shape...)
	for i, p := range recon.Data {
		d.Data[i] = scale * (p - target.Data[i])
	}
	return d
}

// klGrad gibt die Gradienten des mittleren KL nach mean und log_var zurueck
func klGrad(p Posterior) (dMean, dLogVar *ml.Tensor) {
	scale := 1 / float32(p.Mean.Dim(0))
	dMean = ml.New(p.Mean.Shape...)
	dLogVar = ml.New(p.LogVar.Shape...)
	for i, m := range p.Mean.Data {
		dMean.Data[i] = scale * m
		dLogVar.Data[i] = scale * 0.5 * (float32(math.Exp(float64(p.LogVar.Data[i]))) - 1)
	}
	return dMean, dLogVar
}
