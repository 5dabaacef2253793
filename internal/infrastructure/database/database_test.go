package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/chardev-core/migrations"
)

func TestOpen_Pragmas(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantJournal string
		wantBusyMS  int
	}{
		{"wal", Config{WALMode: true, BusyTimeout: 5}, "wal", 5000},
		{"rollback journal", Config{WALMode: false, BusyTimeout: 2}, "delete", 2000},
		{"no busy timeout", Config{WALMode: true}, "wal", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Path = filepath.Join(t.TempDir(), "chardev.db")
			db, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close()

			ctx := context.Background()
			var journal string
			if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal); err != nil {
				t.Fatalf("journal_mode: %v", err)
			}
			if journal != tt.wantJournal {
				t.Errorf("journal_mode = %q, want %q", journal, tt.wantJournal)
			}

			var busy int
			if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy); err != nil {
				t.Fatalf("busy_timeout: %v", err)
			}
			if busy != tt.wantBusyMS {
				t.Errorf("busy_timeout = %d, want %d", busy, tt.wantBusyMS)
			}

			var fk int
			if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
				t.Fatalf("foreign_keys: %v", err)
			}
			if fk != 1 {
				t.Errorf("foreign_keys = %d, want 1", fk)
			}
		})
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "chardevd", "audit.db")

	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestOpen_ParentIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}

	_, err := Open(context.Background(), Config{Path: filepath.Join(blocker, "audit.db")})
	if err == nil || !strings.Contains(err.Error(), "creating database directory") {
		t.Errorf("Open() error = %v, want directory failure", err)
	}
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "audit.db"), BusyTimeout: 1})
	if err == nil {
		db.Close()
		t.Fatal("Open() with cancelled context should fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Open() error = %v, want context.Canceled", err)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}

func TestClose_ZeroValue(t *testing.T) {
	if err := (&DB{}).Close(); err != nil {
		t.Errorf("Close() on unopened DB = %v, want nil", err)
	}
}

func TestAuditSchema_Strict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, kind, class, created_at) VALUES ('aud-1', 'class_registered', 'mychardev', '2026-03-01T09:00:00Z')`,
	); err != nil {
		t.Fatalf("insert with defaults: %v", err)
	}
	var minor, n int
	if err := db.QueryRowContext(ctx, "SELECT minor, bytes FROM audit_logs WHERE id = 'aud-1'").Scan(&minor, &n); err != nil {
		t.Fatalf("select: %v", err)
	}
	if minor != -1 || n != 0 {
		t.Errorf("defaults minor=%d bytes=%d, want -1 and 0", minor, n)
	}

	// STRICT tables reject values of the wrong type.
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, kind, class, bytes, created_at) VALUES ('aud-2', 'written', 'mychardev', 'lots', '2026-03-01T09:00:00Z')`,
	)
	if err == nil || !strings.Contains(err.Error(), "executing query") {
		t.Errorf("insert of text into bytes: error = %v, want wrapped failure", err)
	}
}

func TestBeginTx_AuditRows(t *testing.T) {
	tests := []struct {
		name      string
		commit    bool
		wantCount int
	}{
		{"commit", true, 1},
		{"rollback", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			ctx := context.Background()
			if err := db.Migrate(ctx, migrations.FS); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_logs (id, kind, class, minor, name, created_at) VALUES ('aud-tx', 'opened', 'mychardev', 0, 'mychardev-0', '2026-03-01T09:00:00Z')`,
			); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if tt.commit {
				err = tx.Commit()
			} else {
				err = tx.Rollback()
			}
			if err != nil {
				t.Fatalf("finishing tx: %v", err)
			}

			var count int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&count); err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("rows = %d, want %d", count, tt.wantCount)
			}
		})
	}
}

func TestMigrate_AuditSchemaRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Errorf("status = %d applied, %d pending; want 1, 0", len(applied), len(pending))
	}
	if !tableExists(t, db, "audit_logs") {
		t.Fatal("audit_logs missing after Migrate")
	}

	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "audit_logs") {
		t.Error("audit_logs still present after MigrateDown")
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
