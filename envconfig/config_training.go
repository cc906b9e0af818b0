// config_training.go - Trainings-Konfiguration
//
// Dieses Modul enthaelt:
// - Seed und Prefetch-Tiefe
// - Speicher-Datentyp der Checkpoints
// - Optionales Ueberschreiben der Lernrate
package envconfig

var (
	// Seed fuer Initialisierung und Rauschen, 0 = zeitbasiert
	Seed = Uint64("VAE_SEED", 0)

	// Prefetch ist die Anzahl vorgeladener Batches
	Prefetch = Uint("VAE_PREFETCH", 4)

	// CheckpointDType ist der Speichertyp der Gewichte (f32, f16, bf16)
	CheckpointDType = String("VAE_CHECKPOINT_DTYPE")

	// LearningRate ueberschreibt die Lernrate des Presets, 0 = Preset
	LearningRate = Float("VAE_LEARNING_RATE", 0)

	// NoHistory schaltet das Laufprotokoll in SQLite ab
	NoHistory = Bool("VAE_NOHISTORY")
)
