// database_migrations.go - Datenbank-Schema-Migrationen

package store

import "fmt"

// migrate bringt aeltere Datenbanken schrittweise auf currentSchemaVersion
func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// finished_at Spalte zur runs Tabelle hinzufuegen
			if err := db.migrateV1ToV2(); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		case 2:
			// preset Spalte und Index auf created_at
			if err := db.migrateV2ToV3(); err != nil {
				return fmt.Errorf("migrate v2 to v3: %w", err)
			}
			version = 3
		default:
			// Unbekannte Version - auf aktuell setzen
			version = currentSchemaVersion
			if err := db.setSchemaVersion(version); err != nil {
				return err
			}
		}
	}
	return nil
}

func (db *database) migrateV1ToV2() error {
	_, err := db.conn.Exec(`ALTER TABLE runs ADD COLUMN finished_at TIMESTAMP;`)
	if err != nil && !duplicateColumnError(err) {
		return fmt.Errorf("add finished_at column: %w", err)
	}
	return db.setSchemaVersion(2)
}

func (db *database) migrateV2ToV3() error {
	_, err := db.conn.Exec(`ALTER TABLE runs ADD COLUMN preset TEXT NOT NULL DEFAULT '';`)
	if err != nil && !duplicateColumnError(err) {
		return fmt.Errorf("add preset column: %w", err)
	}

	// Preset aus der gespeicherten Config nachtragen
	_, err = db.conn.Exec(`UPDATE runs SET preset = COALESCE(json_extract(config, '$.name'), '') WHERE preset = '' AND json_valid(config);`)
	if err != nil {
		return fmt.Errorf("backfill preset: %w", err)
	}

	_, err = db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`)
	if err != nil {
		return fmt.Errorf("create runs index: %w", err)
	}
	return db.setSchemaVersion(3)
}
