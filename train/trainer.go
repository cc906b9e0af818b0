// MODUL: train
// ZWECK: Trainingsschleife des VAE als Zustandsautomat
// INPUT: vae.Model, dataset.Reader, optim.Optimizer, Options
// OUTPUT: Summary mit Endzustand und Verlustverlauf
// NEBENEFFEKTE: Aktualisiert Gewichte, schreibt Checkpoints, meldet Schritte an einen Recorder
// ABHAENGIGKEITEN: github.com/google/uuid, gonum.org/v1/gonum/stat
// HINWEISE: Initialized -> Training -> Converged | StepLimitReached | Failed.
//           Jeder Fehler ist fatal, es gibt keine Wiederholung. Ein Trainer
//           laeuft genau einmal.

package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/7blacky7/vae/checkpoint"
	"github.com/7blacky7/vae/dataset"
	"github.com/7blacky7/vae/logutil"
	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/optim"
	"github.com/7blacky7/vae/model/vae"
)

// ErrAborted meldet einen Abbruch ueber den Context
var ErrAborted = errors.New("training aborted")

// Checkpointer sichert den Modellzustand an Checkpoint-Grenzen
type Checkpointer interface {
	Checkpoint(m *vae.Model, meta checkpoint.Metadata) error
}

// FileCheckpointer schreibt safetensors-Dateien ueber checkpoint.Save
type FileCheckpointer struct {
	Path  string
	DType ml.DType
}

func (c FileCheckpointer) Checkpoint(m *vae.Model, meta checkpoint.Metadata) error {
	return checkpoint.Save(c.Path, m, meta, c.DType)
}

// Recorder protokolliert Laeufe, z.B. in store.Store
type Recorder interface {
	StartRun(ctx context.Context, id string, cfg vae.Config) error
	RecordStep(ctx context.Context, id string, step int, loss vae.LossResult) error
	FinishRun(ctx context.Context, id string, status string) error
}

// Summary beschreibt einen beendeten Lauf
type Summary struct {
	RunID    string         `json:"run_id"`
	State    string         `json:"state"`
	Steps    int            `json:"steps"`
	Last     vae.LossResult `json:"last"`
	Smoothed float64        `json:"smoothed"`
	Mean     float64        `json:"mean"`
	StdDev   float64        `json:"std_dev"`
	Duration time.Duration  `json:"duration"`
}

type Trainer struct {
	Model        *vae.Model
	Reader       dataset.Reader
	Optimizer    optim.Optimizer
	Options      Options
	Checkpointer Checkpointer
	Recorder     Recorder

	state  State
	runID  string
	losses []float64
	ema    float64
	// prevEMA ist der geglaettete Verlust am letzten Log-Intervall
	prevEMA float64
}

// New prueft die Optionen gegen die Modell-Config
func New(m *vae.Model, r dataset.Reader, opt optim.Optimizer, opts ...Option) (*Trainer, error) {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{Model: m, Reader: r, Optimizer: opt, Options: o}, nil
}

func (t *Trainer) State() State {
	return t.state
}

func (t *Trainer) RunID() string {
	return t.runID
}

// Losses gibt den Gesamtverlust jedes Schritts zurueck
func (t *Trainer) Losses() []float64 {
	return t.losses
}

// Run trainiert bis zur Konvergenz, bis Steps erreicht ist oder bis zum ersten Fehler
func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	if t.state != Initialized {
		return t.summary(0), fmt.Errorf("trainer is %s, runs only once", t.state)
	}
	if err := t.Options.Validate(); err != nil {
		return t.summary(0), err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return t.summary(0), err
	}
	t.runID = id.String()
	t.losses = make([]float64, 0, t.Options.Steps)
	start := time.Now()

	if t.Recorder != nil {
		if err := t.Recorder.StartRun(ctx, t.runID, t.Model.Config); err != nil {
			slog.Warn("failed to record run start", "run", t.runID, "error", err)
		}
	}

	t.state = Training
	slog.Info("training started", "run", t.runID, "preset", t.Model.Config.Name, "params", t.Model.NumParams(),
		"optimizer", t.Optimizer.Name(), "steps", t.Options.Steps, "batch_size", t.Options.BatchSize)

	var last vae.LossResult
	err = t.loop(ctx, &last)
	if err != nil {
		t.state = Failed
	}

	if err == nil {
		err = t.checkpoint(last)
		if err != nil {
			t.state = Failed
		}
	}

	if t.Recorder != nil {
		if rerr := t.Recorder.FinishRun(context.WithoutCancel(ctx), t.runID, t.state.String()); rerr != nil {
			slog.Warn("failed to record run end", "run", t.runID, "error", rerr)
		}
	}

	summary := t.summary(time.Since(start))
	summary.Last = last
	if err != nil {
		slog.Error("training failed", "run", t.runID, "step", len(t.losses), "error", err)
		return summary, err
	}
	slog.Info("training finished", "run", t.runID, "state", t.state, "steps", summary.Steps, "loss", last.Total, "duration", summary.Duration)
	return summary, nil
}

func (t *Trainer) loop(ctx context.Context, last *vae.LossResult) error {
	want := t.Options.batchShape(t.Model.Config.ImageShape())

	for step := 1; step <= t.Options.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w at step %d: %w", ErrAborted, step, err)
		}

		_, batch, err := t.Reader.Read(ctx, t.Options.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w at step %d: %w", ErrAborted, step, err)
			}
			return fmt.Errorf("step %d: read batch: %w", step, err)
		}
		if err := ml.CheckShape("batch", want, batch.Shape); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		batch = dataset.Normalize(batch)
		if err := dataset.CheckNormalized(batch); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}

		res, err := t.Model.TrainStep(batch, t.Optimizer)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		*last = res
		t.observe(res.Total)

		if logutil.TraceEnabled(ctx) {
			logutil.TraceContext(ctx, "train step", "step", step, "loss", res.Total, "reconstruction", res.Reconstruction, "kl", res.KL, "grad_norm", optim.GradNorm(t.Model.Params()))
		}

		if t.Recorder != nil {
			if err := t.Recorder.RecordStep(ctx, t.runID, step, res); err != nil {
				slog.Warn("failed to record step", "run", t.runID, "step", step, "error", err)
			}
		}

		if step == 1 || step%t.Options.LogEvery == 0 {
			slog.Info("step", "step", step, "loss", res.Total, "reconstruction", res.Reconstruction, "kl", res.KL, "smoothed", t.ema)
		}

		if every := t.Options.CheckpointEvery; every > 0 && step%every == 0 && step < t.Options.Steps {
			if err := t.checkpoint(res); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
		}

		if step%t.Options.LogEvery == 0 {
			if t.converged(step) {
				t.state = Converged
				return nil
			}
			t.prevEMA = t.ema
		}
	}

	t.state = StepLimitReached
	return nil
}

// observe aktualisiert das exponentiell gleitende Mittel
func (t *Trainer) observe(loss float64) {
	if len(t.losses) == 0 {
		t.ema = loss
	} else {
		a := t.Options.Smoothing
		t.ema = a*t.ema + (1-a)*loss
	}
	t.losses = append(t.losses, loss)
}

// converged vergleicht das gleitende Mittel mit dem des letzten Log-Intervalls
func (t *Trainer) converged(step int) bool {
	if t.Options.Tolerance <= 0 || step <= t.Options.LogEvery {
		return false
	}
	change := math.Abs(t.prevEMA-t.ema) / max(math.Abs(t.prevEMA), 1e-12)
	slog.Debug("convergence check", "step", step, "relative_change", change, "tolerance", t.Options.Tolerance)
	return change < t.Options.Tolerance
}

func (t *Trainer) checkpoint(res vae.LossResult) error {
	if t.Checkpointer == nil {
		return nil
	}
	meta := checkpoint.Metadata{Step: len(t.losses), Loss: res.Total, RunID: t.runID}
	if err := t.Checkpointer.Checkpoint(t.Model, meta); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	slog.Info("checkpoint written", "run", t.runID, "step", meta.Step)
	return nil
}

func (t *Trainer) summary(d time.Duration) Summary {
	s := Summary{RunID: t.runID, State: t.state.String(), Steps: len(t.losses), Smoothed: t.ema, Duration: d}
	if len(t.losses) > 0 {
		s.Mean, s.StdDev = stat.MeanStdDev(t.losses, nil)
		if len(t.losses) == 1 {
			s.StdDev = 0
		}
	}
	return s
}
