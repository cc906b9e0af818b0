// types.go - Datentypen fuer die Speicherung von Tensoren
// Gerechnet wird immer in float32, DType betrifft nur Checkpoints.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the storage type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "OTHER"
	}
}

// Size gibt die Bytes pro Element zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

// ParseDType akzeptiert safetensors-Namen ("F32") und CLI-Namen ("f16", "bfloat16")
func ParseDType(s string) (DType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "F32", "FLOAT32":
		return DTypeF32, nil
	case "F16", "FLOAT16":
		return DTypeF16, nil
	case "BF16", "BFLOAT16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported dtype %q", s)
	}
}
