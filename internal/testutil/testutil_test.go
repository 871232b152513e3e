package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := NewClock(start)
	if !clock.Now().Equal(start) {
		t.Fatalf("expected start time")
	}
	if got := clock.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("unexpected advance %s", got)
	}
	clock.Set(start)
	if !clock.Now().Equal(start) {
		t.Fatalf("expected reset")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	src := "package x\n\nimport (\n\t\"fmt\"\n\t\"gibiertrace/internal/core\"\n)\n\nvar _ = fmt.Sprint\nvar _ core.Clock\n"
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), []byte("package x\n\nimport _ \"gibiertrace/internal/adapters/httpapi\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "gibiertrace/internal/core (in x.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}
	viols, _ = directImportViolations(dir, TransportImportForbidden)
	if len(viols) != 0 {
		t.Fatalf("test files must be ignored, got %v", viols)
	}

	rec := &recordingFatal{}
	failIfDirectViolations(rec, "reason", []string{"a"})
	if rec.msg == "" {
		t.Fatalf("expected fatal on violations")
	}
	rec = &recordingFatal{}
	failIfDirectViolations(rec, "reason", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected fatal without violations")
	}
}
