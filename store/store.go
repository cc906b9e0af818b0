// Modul: store.go
// Beschreibung: Lauf-Protokoll der Trainings in SQLite.
// Der Store oeffnet die Datenbank beim ersten Zugriff und erfuellt
// train.Recorder.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/7blacky7/vae/envconfig"
	"github.com/7blacky7/vae/model/vae"
)

type Store struct {
	// DBPath ueberschreibt den Standardpfad (hauptsaechlich fuer Tests)
	DBPath string

	// dbMu schuetzt nur die Initialisierung
	dbMu sync.Mutex
	db   *database
}

// DefaultPath liegt im VAE_HOME Verzeichnis
func DefaultPath() string {
	return filepath.Join(envconfig.Home(), "runs.sqlite")
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	slog.Debug("run store opened", "path", dbPath)
	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// StartRun legt einen neuen Lauf mit Status "training" an
func (s *Store) StartRun(_ context.Context, id string, cfg vae.Config) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.insertRun(id, cfg.Name, string(b), "training")
}

func (s *Store) RecordStep(_ context.Context, id string, step int, loss vae.LossResult) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.insertStep(id, Step{Step: step, Loss: loss.Total, Reconstruction: loss.Reconstruction, KL: loss.KL})
}

func (s *Store) FinishRun(_ context.Context, id string, status string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.finishRun(id, status, time.Now())
}

// Runs gibt die juengsten Laeufe zuerst zurueck
func (s *Store) Runs(limit int) ([]Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	return s.db.getRuns(limit)
}

func (s *Store) Run(id string) (Run, error) {
	if err := s.ensureDB(); err != nil {
		return Run{}, err
	}
	return s.db.getRun(id)
}

func (s *Store) Steps(id string) ([]Step, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if _, err := s.db.getRun(id); err != nil {
		return nil, err
	}
	return s.db.getSteps(id)
}

// DeleteRun loescht einen Lauf samt Schritten
func (s *Store) DeleteRun(id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.deleteRun(id)
}
