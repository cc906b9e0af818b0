// errors.go - Fehlertypen fuer Shape-Vertraege
package ml

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch wird bei jeder Verletzung eines Shape-Vertrags gemeldet.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError beschreibt, welche Operation welche Shape erwartet hat.
type ShapeError struct {
	Op   string
	Want Shape
	Got  Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: want %s, got %s", e.Op, ErrShapeMismatch, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// CheckShape gibt einen ShapeError zurueck, wenn got nicht want entspricht.
// Eine -1 in want passt auf jede Groesse.
func CheckShape(op string, want, got Shape) error {
	if len(want) != len(got) {
		return &ShapeError{Op: op, Want: want, Got: got}
	}
	for i := range want {
		if want[i] != -1 && want[i] != got[i] {
			return &ShapeError{Op: op, Want: want, Got: got}
		}
	}
	return nil
}
