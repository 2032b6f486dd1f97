package migrate

import (
	"strings"
	"testing"
)

func TestFiles_PairedUpDown(t *testing.T) {
	t.Parallel()

	files, err := Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) == 0 || len(files)%2 != 0 {
		t.Fatalf("expected paired up/down files, got %v", files)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			ups[strings.TrimSuffix(f, ".up.sql")] = true
		case strings.HasSuffix(f, ".down.sql"):
			downs[strings.TrimSuffix(f, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file name: %s", f)
		}
	}
	for k := range ups {
		if !downs[k] {
			t.Fatalf("missing down migration for %s", k)
		}
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	t.Parallel()

	if err := Run("", Up); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if err := Run("postgres://localhost/x", Direction("sideways")); err == nil {
		t.Fatalf("expected error for bad direction")
	}
}
