package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	files := fstest.MapFS{
		"002_appointments.sql": {Data: []byte("CREATE TABLE appointments (id UUID);")},
		"001_core.sql":         {Data: []byte("CREATE TABLE patients (id UUID);")},
		"010_indexes.sql":      {Data: []byte("CREATE INDEX x ON appointments (id);")},
	}

	migrations, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_core.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE patients (id UUID);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 10 {
		t.Errorf("expected version 10 last, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":  {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"seed.sql":      {Data: []byte("SELECT 2;")},
		"abc_bad.sql":   {Data: []byte("SELECT 3;")},
		"sub/002_x.sql": {Data: []byte("SELECT 4;")},
	}

	migrations, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":  {Data: []byte("SELECT 1;")},
		"1_another.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := LoadMigrations(files); err == nil {
		t.Fatal("expected duplicate version error")
	}
}
