package dataset

import (
	"context"
	"math"

	"github.com/7blacky7/vae/ml"
)

// Synthetic erzeugt einfache Raumszenen: ein Farbverlauf als Boden und Wand,
// darauf Rechtecke und Scheiben. Jede Ansicht verschiebt die Objekte
// abhaengig vom Gierwinkel der Kamera.
type Synthetic struct {
	Height, Width, Channels int
	ContextSize             int
	MaxObjects              int

	rng *ml.RNG
}

func NewSynthetic(height, width, channels, contextSize int, rng *ml.RNG) *Synthetic {
	return &Synthetic{Height: height, Width: width, Channels: channels, ContextSize: contextSize, MaxObjects: 3, rng: rng}
}

type object struct {
	disc    bool
	cx, cy  float64 // Mittelpunkt in [0,1]
	size    float64
	depth   float64
	r, g, b float32
}

type scene struct {
	top, bottom [3]float32
	objects     []object
}

func (s *Synthetic) color() (float32, float32, float32) {
	return float32(s.rng.Float64()), float32(s.rng.Float64()), float32(s.rng.Float64())
}

func (s *Synthetic) newScene() scene {
	var sc scene
	sc.top[0], sc.top[1], sc.top[2] = s.color()
	sc.bottom[0], sc.bottom[1], sc.bottom[2] = s.color()

	n := 1 + s.rng.Intn(max(s.MaxObjects, 1))
	for range n {
		o := object{
			disc:  s.rng.Float64() < 0.5,
			cx:    0.2 + 0.6*s.rng.Float64(),
			cy:    0.3 + 0.5*s.rng.Float64(),
			size:  0.08 + 0.15*s.rng.Float64(),
			depth: 0.5 + s.rng.Float64(),
		}
		o.r, o.g, o.b = s.color()
		sc.objects = append(sc.objects, o)
	}
	return sc
}

// camera zieht eine Kamera auf einem Ring um die Szene
func (s *Synthetic) camera(dst []float32) float64 {
	yaw := (s.rng.Float64()*2 - 1) * math.Pi / 4
	pitch := (s.rng.Float64()*2 - 1) * math.Pi / 12
	dst[0], dst[1], dst[2] = float32(math.Sin(yaw)), 0, float32(-math.Cos(yaw))
	dst[3], dst[4] = float32(math.Sin(yaw)), float32(math.Cos(yaw))
	dst[5], dst[6] = float32(math.Sin(pitch)), float32(math.Cos(pitch))
	return yaw
}

// render zeichnet eine Ansicht nach dst [height, width, channels]
func (s *Synthetic) render(sc scene, yaw float64, dst []float32) {
	h, w, c := s.Height, s.Width, s.Channels
	for y := 0; y < h; y++ {
		t := float32(y) / float32(max(h-1, 1))
		for x := 0; x < w; x++ {
			px := [3]float32{}
			for i := range px {
				px[i] = sc.top[i]*(1-t) + sc.bottom[i]*t
			}

			fx, fy := (float64(x)+0.5)/float64(w), (float64(y)+0.5)/float64(h)
			// hintere Objekte zuerst, nahe Objekte verdecken sie
			for i := len(sc.objects) - 1; i >= 0; i-- {
				o := sc.objects[i]
				cx := o.cx - yaw*0.3/o.depth
				dx, dy := fx-cx, fy-o.cy
				inside := math.Abs(dx) < o.size && math.Abs(dy) < o.size
				if o.disc {
					inside = dx*dx+dy*dy < o.size*o.size
				}
				if inside {
					px = [3]float32{o.r, o.g, o.b}
				}
			}

			out := dst[(y*w+x)*c : (y*w+x+1)*c]
			if c == 1 {
				out[0] = 0.299*px[0] + 0.587*px[1] + 0.114*px[2]
				continue
			}
			copy(out, px[:c])
		}
	}
}

func (s *Synthetic) Read(ctx context.Context, batchSize int) (Query, *ml.Tensor, error) {
	if err := checkBatchSize(batchSize); err != nil {
		return Query{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return Query{}, nil, err
	}

	h, w, c, k := s.Height, s.Width, s.Channels, s.ContextSize
	target := ml.New(batchSize, h, w, c)
	query := Query{
		Context: Context{
			Images:  ml.New(batchSize, k, h, w, c),
			Cameras: ml.New(batchSize, k, CameraDim),
		},
		QueryCamera: ml.New(batchSize, CameraDim),
	}

	view := h * w * c
	for b := 0; b < batchSize; b++ {
		sc := s.newScene()
		for i := 0; i < k; i++ {
			cam := query.Context.Cameras.Row(b)[i*CameraDim : (i+1)*CameraDim]
			yaw := s.camera(cam)
			s.render(sc, yaw, query.Context.Images.Row(b)[i*view:(i+1)*view])
		}
		yaw := s.camera(query.QueryCamera.Row(b))
		s.render(sc, yaw, target.Row(b))
	}
	return query, target, nil
}
