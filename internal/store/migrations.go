package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - one JSON encoded value per configuration key
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Hits table - every hit emitted by the precision scan
		`CREATE TABLE IF NOT EXISTS hits (
			id TEXT PRIMARY KEY,
			team TEXT NOT NULL CHECK(team IN ('A', 'B')),
			color TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			mass INTEGER NOT NULL DEFAULT 0,
			frame_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_hits_created_at ON hits(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_team ON hits(team)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
