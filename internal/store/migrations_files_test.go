package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// The migrations runner applies files in lexical order, so names must
// sort the way they should run and every file must hold real SQL.
func TestMigrationFilesAreOrderedAndNonEmpty(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			t.Fatalf("unexpected file in migrations dir: %s", name)
		}
		names = append(names, name)

		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if strings.TrimSpace(string(contents)) == "" {
			t.Fatalf("migration %s is empty", name)
		}
	}

	if len(names) == 0 {
		t.Fatalf("no migrations found in %s", dir)
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("migration files are not in lexical order: %v", names)
	}
}

func TestInitialMigrationCoversCoreTables(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	schema := string(contents)
	for _, table := range []string{
		"paragraphs",
		"suggestions",
		"evaluations",
		"evidence_posts",
		"replacement_queue",
		"version_history",
		"version_archives",
	} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("initial migration missing table %s", table)
		}
	}
}
