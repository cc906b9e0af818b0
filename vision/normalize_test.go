package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/7blacky7/vae/ml"
)

// createTestImage erzeugt ein Testbild mit vier Farbquadranten
func createTestImage(w, h int) *ImageInput {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case x < w/2 && y < h/2:
				rgba.Set(x, y, color.RGBA{255, 0, 0, 255})
			case y < h/2:
				rgba.Set(x, y, color.RGBA{0, 255, 0, 255})
			case x < w/2:
				rgba.Set(x, y, color.RGBA{0, 0, 255, 255})
			default:
				rgba.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	return newInput(rgba, FormatPNG)
}

func TestToFloat32Tensor(t *testing.T) {
	img := createTestImage(4, 4)

	rgb, err := ToFloat32Tensor(img, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !rgb.Shape.Equal(ml.Shape{4, 4, 3}) {
		t.Fatalf("Shape = %v, erwartet [4, 4, 3]", rgb.Shape)
	}

	// Pixel (0, 0) rot, Pixel (3, 3) weiss
	if rgb.Data[0] != 1 || rgb.Data[1] != 0 || rgb.Data[2] != 0 {
		t.Errorf("Pixel (0,0) = %v, erwartet rot", rgb.Data[0:3])
	}
	last := rgb.Data[len(rgb.Data)-3:]
	if last[0] != 1 || last[1] != 1 || last[2] != 1 {
		t.Errorf("Pixel (3,3) = %v, erwartet weiss", last)
	}

	gray, err := ToFloat32Tensor(img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !gray.Shape.Equal(ml.Shape{4, 4, 1}) {
		t.Fatalf("Shape = %v, erwartet [4, 4, 1]", gray.Shape)
	}
	for i, v := range gray.Data {
		if v < 0 || v > 1 {
			t.Errorf("Graustufe[%d] = %v ausserhalb [0,1]", i, v)
		}
	}
	if gray.Data[len(gray.Data)-1] != 1 {
		t.Errorf("Weiss sollte Luminanz 1 haben, bekam %v", gray.Data[len(gray.Data)-1])
	}

	if _, err := ToFloat32Tensor(img, 4); !errors.Is(err, ErrInvalidChannels) {
		t.Errorf("Erwartet ErrInvalidChannels, bekam %v", err)
	}
}

func TestFromFloat32TensorRoundTrip(t *testing.T) {
	for _, c := range []int{1, 3} {
		orig, err := ToFloat32Tensor(createTestImage(6, 4), c)
		if err != nil {
			t.Fatal(err)
		}

		img, err := FromFloat32Tensor(orig)
		if err != nil {
			t.Fatal(err)
		}
		back, err := ToFloat32Tensor(newInput(toRGBA(img), FormatPNG), c)
		if err != nil {
			t.Fatal(err)
		}
		for i := range orig.Data {
			if d := orig.Data[i] - back.Data[i]; d > 1.0/255 || d < -1.0/255 {
				t.Fatalf("Kanaele %d: Wert %d = %v, erwartet %v", c, i, back.Data[i], orig.Data[i])
			}
		}
	}
}

func TestFromFloat32TensorClamps(t *testing.T) {
	tt, _ := ml.FromSlice([]float32{-1, 0.5, 2}, 1, 3, 1)
	img, err := FromFloat32Tensor(tt)
	if err != nil {
		t.Fatal(err)
	}
	gray := img.(*image.Gray)
	if gray.Pix[0] != 0 || gray.Pix[1] != 128 || gray.Pix[2] != 255 {
		t.Errorf("Pix = %v, erwartet [0 128 255]", gray.Pix)
	}

	if _, err := FromFloat32Tensor(ml.New(2, 2, 2)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("Erwartet ErrShapeMismatch, bekam %v", err)
	}
}

func TestLoadTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bild.png")
	if err := os.WriteFile(path, createPNGBytes(32, 16, color.White), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, WithSize(8, 8), WithChannels(1), WithCenterCrop(true))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Shape.Equal(ml.Shape{8, 8, 1}) {
		t.Errorf("Shape = %v, erwartet [8, 8, 1]", got.Shape)
	}
}

func TestPNGSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "canvas.png")
	canvas := ml.Full(0.5, 4, 6, 3)

	var sink Sink = PNGSink{}
	if err := sink.Write(canvas, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Errorf("Groesse = %dx%d, erwartet 6x4", b.Dx(), b.Dy())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporaere Dateien uebrig: %d Eintraege", len(entries))
	}
}
