// store_types.go - Datentypen des Lauf-Protokolls

package store

import (
	"errors"
	"time"
)

// ErrRunNotFound wird zurueckgegeben, wenn eine Lauf-ID unbekannt ist
var ErrRunNotFound = errors.New("run not found")

// Run ist ein Trainingslauf
type Run struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Preset     string     `json:"preset"`
	Config     string     `json:"config"`
	Status     string     `json:"status"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Steps      int        `json:"steps"`
	LastLoss   float64    `json:"last_loss"`
}

// Step ist der Verlust eines einzelnen Optimierungsschritts
type Step struct {
	Step           int     `json:"step"`
	Loss           float64 `json:"loss"`
	Reconstruction float64 `json:"reconstruction"`
	KL             float64 `json:"kl"`
}
