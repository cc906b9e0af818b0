package ml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPermuteNHWCToNCHW(t *testing.T) {
	// 1x2x2x3 NHWC: [R0, G0, B0, R1, G1, B1, ...]
	x, _ := FromSlice([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	}, 1, 2, 2, 3)

	got, err := Permute(x, 0, 3, 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(Shape{1, 3, 2, 2}, got.Shape); diff != "" {
		t.Errorf("Shape (-want +got):\n%s", diff)
	}

	want := []float32{1, 4, 7, 10, 2, 5, 8, 11, 3, 6, 9, 12}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Errorf("Daten (-want +got):\n%s", diff)
	}

	// Original bleibt unveraendert
	if x.Data[1] != 2 {
		t.Error("Permute hat die Eingabe veraendert")
	}
}

func TestPermuteRoundTrip(t *testing.T) {
	x := NewRNG(3).Normal(2, 3, 4, 5)

	y, err := Permute(x, 2, 0, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Permute(y, 1, 3, 0, 2)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(x, back); diff != "" {
		t.Errorf("Rundreise (-want +got):\n%s", diff)
	}
}

func TestPermuteInvalidAxes(t *testing.T) {
	x := New(2, 3)
	for _, axes := range [][]int{{0}, {0, 0}, {0, 2}} {
		if _, err := Permute(x, axes...); err == nil {
			t.Errorf("Permute(%v) sollte fehlschlagen", axes)
		}
	}
}
