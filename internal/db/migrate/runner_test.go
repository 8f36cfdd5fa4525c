package migrate

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"dsodesk/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		err := Run(dsn, Up, 0)
		if err == nil {
			t.Fatalf("Run(%q) should return error", dsn)
		}
		if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
			t.Errorf("error = %q, want DATABASE_URL hint", err.Error())
		}
	}
}

func TestParseDirection(t *testing.T) {
	testCases := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"up", Up, false},
		{"down", Down, false},
		{"", "", true},
		{"UP", "", true},
		{"Up", "", true},
		{"sideways", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDirection(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseDirection(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseDirection(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRun_InvalidArguments(t *testing.T) {
	if err := Run("postgres://localhost/test", Direction("left"), 0); err == nil {
		t.Error("Run with invalid direction should return error")
	}
	if err := Run("postgres://localhost/test", Up, -1); err == nil {
		t.Error("Run with negative steps should return error")
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		err := Run(dsn, Up, 0)
		if err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
		if errors.Is(err, ErrNoChange) {
			t.Errorf("Run should never surface ErrNoChange, got %v", err)
		}
	}
}

func TestMigrationFS_Pairs(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %q in migrations", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
}

func TestRun_Live(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := Run(dsn, Up, 0); err != nil {
		t.Fatalf("Run up: %v", err)
	}
	v, dirty, err := Version(dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if dirty || v == 0 {
		t.Errorf("Version() = %d dirty=%v, want clean non-zero", v, dirty)
	}
	// second run is a no-op
	if err := Run(dsn, Up, 0); err != nil {
		t.Fatalf("Run up again: %v", err)
	}
}
