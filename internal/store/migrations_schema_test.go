package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitMigrationCascadesChildRows(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	// Deleting an episode must take its comments and assignments with it,
	// and block indices can never go negative.
	expectedSnippets := []string{
		"REFERENCES episodes(id) ON DELETE CASCADE",
		"REFERENCES users(id) ON DELETE CASCADE",
		"CHECK (block_index >= 0)",
		"UNIQUE (user_id, episode_id)",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("migration missing %q", snippet)
		}
	}

	if strings.Contains(sqlText, "REFERENCES tracks(id) ON DELETE CASCADE") {
		t.Fatal("dropping a track must not silently delete its episodes")
	}
}
