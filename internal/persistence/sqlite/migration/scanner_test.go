package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScannerScan(t *testing.T) {
	fsys := fstest.MapFS{
		"010_add_index.sql":   {Data: []byte("CREATE INDEX idx ON t (a);")},
		"002_create_t.sql":    {Data: []byte("-- Description: Create table t\nCREATE TABLE t (a TEXT);")},
		"001_init.sql":        {Data: []byte("CREATE TABLE init (id TEXT);\n-- trailing comment\n")},
		"README.md":           {Data: []byte("not a migration")},
		"nested/003_skip.sql": {Data: []byte("CREATE TABLE skipped (id TEXT);")},
	}

	migrations, err := NewScanner(fsys).Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" || migrations[2].Version != "010" {
		t.Fatalf("expected numeric ordering, got %s, %s, %s", migrations[0].Version, migrations[1].Version, migrations[2].Version)
	}
	if migrations[1].Description != "Create table t" {
		t.Fatalf("expected description from header, got %q", migrations[1].Description)
	}
	if migrations[0].Description != "init" {
		t.Fatalf("expected description from filename, got %q", migrations[0].Description)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Fatalf("expected distinct checksums")
	}
}

func TestScannerRejectsInvalidFiles(t *testing.T) {
	cases := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "bad filename",
			fsys: fstest.MapFS{"init.sql": {Data: []byte("CREATE TABLE t (a TEXT);")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "comment only",
			fsys: fstest.MapFS{"001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "same version twice",
			fsys: fstest.MapFS{
				"001_a.sql":       {Data: []byte("CREATE TABLE a (id TEXT);")},
				"001_a_again.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
			},
			want: ErrDuplicateVersion,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewScanner(tc.fsys).Scan()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var mErr *MigrationError
			if !errors.As(err, &mErr) {
				t.Fatalf("expected *MigrationError, got %T", err)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- Description: two tables
CREATE TABLE a (
    id TEXT -- inline comments stay
);

-- comment between statements
CREATE TABLE b (id TEXT);
`
	statements := splitStatements(sql)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE TABLE b (id TEXT)" {
		t.Fatalf("unexpected second statement %q", statements[1])
	}
}
