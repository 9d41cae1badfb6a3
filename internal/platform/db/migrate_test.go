package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_users.sql": {Data: []byte("CREATE TABLE users (id UUID PRIMARY KEY);")},
		"001_kv.sql":    {Data: []byte("CREATE TABLE kv_entries (key TEXT PRIMARY KEY);")},
		"010_late.sql":  {Data: []byte("SELECT 1;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_kv.sql" {
		t.Errorf("expected name 001_kv.sql, got %s", migrations[0].Name)
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_kv.sql":    {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"notes.sql":     {Data: []byte("SELECT 2;")},
		"abc_bad.sql":   {Data: []byte("SELECT 3;")},
		"sub/002_x.sql": {Data: []byte("SELECT 4;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, EmbeddedMigrations()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected embedded migrations, got %d", len(migrations))
	}
	if migrations[0].Name != "001_kv.sql" {
		t.Errorf("expected first migration 001_kv.sql, got %s", migrations[0].Name)
	}
}
