// MODUL: normalize
// ZWECK: Umwandlung zwischen Bildern und float32-Tensoren im HWC Layout
// INPUT: ImageInput bzw. ml.Tensor [H, W, C] mit Werten in [0,1]
// OUTPUT: ml.Tensor bzw. image.Image (Gray oder RGBA)
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml
// HINWEISE: Nur Skalierung auf [0,1], keine Mittelwert-Normalisierung.
//           Ein Kanal wird ueber die Luminanz von color.GrayModel gebildet.

package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/7blacky7/vae/ml"
)

// extractRGB holt RGB-Werte als float32 im Bereich [0,1]
func extractRGB(img *ImageInput, x, y int) (float32, float32, float32) {
	c := img.Image.RGBAAt(x, y)
	return float32(c.R) / 255.0, float32(c.G) / 255.0, float32(c.B) / 255.0
}

// ToFloat32Tensor konvertiert ein Bild zu [H, W, channels] mit Werten in [0,1]
func ToFloat32Tensor(img *ImageInput, channels int) (*ml.Tensor, error) {
	if channels != 1 && channels != 3 {
		return nil, ErrInvalidChannels
	}

	bounds := img.Image.Bounds()
	t := ml.New(bounds.Dy(), bounds.Dx(), channels)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if channels == 1 {
				g := color.GrayModel.Convert(img.Image.RGBAAt(x, y)).(color.Gray)
				t.Data[idx] = float32(g.Y) / 255.0
				idx++
				continue
			}
			r, g, b := extractRGB(img, x, y)
			t.Data[idx], t.Data[idx+1], t.Data[idx+2] = r, g, b
			idx += 3
		}
	}
	return t, nil
}

// Load laedt eine Bilddatei direkt als Tensor
func Load(path string, opts ...Option) (*ml.Tensor, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return Tensor(img, opts...)
}

// Tensor bereitet ein Bild laut Options vor und wandelt es um
func Tensor(img *ImageInput, opts ...Option) (*ml.Tensor, error) {
	o := DefaultLoadOptions()
	o.Apply(opts...)

	img, err := Prepare(img, opts...)
	if err != nil {
		return nil, err
	}
	return ToFloat32Tensor(img, o.Channels)
}

func toByte(v float32) uint8 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
}

// FromFloat32Tensor wandelt [H, W, C] mit C = 1 oder 3 in ein Bild um.
// Werte ausserhalb [0,1] werden abgeschnitten.
func FromFloat32Tensor(t *ml.Tensor) (image.Image, error) {
	if t.Rank() != 3 || (t.Dim(2) != 1 && t.Dim(2) != 3) {
		return nil, fmt.Errorf("%w: image tensor must be [h, w, 1|3], got %v", ml.ErrShapeMismatch, t.Shape)
	}

	h, w, c := t.Dim(0), t.Dim(1), t.Dim(2)
	rect := image.Rect(0, 0, w, h)
	if c == 1 {
		img := image.NewGray(rect)
		for i, v := range t.Data {
			img.Pix[i] = toByte(v)
		}
		return img, nil
	}

	img := image.NewRGBA(rect)
	for i := 0; i < h*w; i++ {
		img.Pix[4*i] = toByte(t.Data[3*i])
		img.Pix[4*i+1] = toByte(t.Data[3*i+1])
		img.Pix[4*i+2] = toByte(t.Data[3*i+2])
		img.Pix[4*i+3] = 0xff
	}
	return img, nil
}
