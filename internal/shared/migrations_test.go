package shared

import (
	"database/sql"
	"testing"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	ConfigureDatabase(db, 1, 1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
			if m.Name == "" {
				t.Errorf("migration version %d missing name", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db := openMemoryDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"fingerprints", "runs"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		version, err := SchemaVersion(db)
		if err != nil {
			t.Fatalf("failed to read schema version: %v", err)
		}
		if version != 1 {
			t.Errorf("expected schema version 1, got %d", version)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount); err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}

		if _, err := db.Exec("SELECT 1 FROM runs LIMIT 1"); err == nil {
			t.Error("runs table should be dropped by rollback")
		}
		if _, err := db.Exec("SELECT 1 FROM fingerprints LIMIT 1"); err != nil {
			t.Errorf("fingerprints table should survive rollback of the runs migration: %v", err)
		}
	})

	t.Run("SchemaVersion on empty database", func(t *testing.T) {
		db := openMemoryDB(t)

		version, err := SchemaVersion(db)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if version != -1 {
			t.Errorf("expected -1 for an unmigrated database, got %d", version)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db := openMemoryDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file      string
		version   int
		name      string
		direction string
		ok        bool
	}{
		{"0001_create_runs_up.sql", 1, "create_runs", "up", true},
		{"0000_create_fingerprints_down.sql", 0, "create_fingerprints", "down", true},
		{"0002_notes.sql", 0, "", "", false},
		{"abcd_create_up.sql", 0, "", "", false},
		{"0003_create_up.txt", 0, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, direction, ok := parseMigrationName(tt.file)
			if ok != tt.ok || version != tt.version || name != tt.name || direction != tt.direction {
				t.Errorf("got (%d, %q, %q, %v), want (%d, %q, %q, %v)",
					version, name, direction, ok, tt.version, tt.name, tt.direction, tt.ok)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	script := `
-- fingerprints cache
CREATE TABLE a (id INTEGER); -- trailing
CREATE INDEX idx_a ON a (id);

`
	stmts := splitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (id INTEGER)" {
		t.Errorf("unexpected first statement %q", stmts[0])
	}
	if stmts[1] != "CREATE INDEX idx_a ON a (id)" {
		t.Errorf("unexpected second statement %q", stmts[1])
	}
}
